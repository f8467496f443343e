package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/attendance"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/device"
)

// submitRequest is the boundary contract for the submission endpoint. The
// body is decoded strictly: unrecognized fields, including inside
// device_info, are a hard rejection before the pipeline runs.
type submitRequest struct {
	MatricNo    string       `json:"matric_no"`
	SessionCode string       `json:"session_code"`
	Lat         *float64     `json:"lat"`
	Lng         *float64     `json:"lng"`
	Accuracy    *float64     `json:"accuracy"`
	DeviceInfo  *device.Info `json:"device_info"`
	Level       *int         `json:"level"`
}

var sessionCodeRe = regexp.MustCompile(`^[0-9]{4}$`)

var allowedLevels = map[int]bool{100: true, 200: true, 300: true, 400: true, 500: true, 600: true}

func decodeSubmitRequest(body io.Reader) (*submitRequest, error) {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	var req submitRequest
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *submitRequest) validate() error {
	if r.MatricNo == "" {
		return errors.New("matric_no is required")
	}
	if !sessionCodeRe.MatchString(r.SessionCode) {
		return errors.New("session_code must be exactly 4 digits")
	}
	if r.Lat == nil || *r.Lat < -90 || *r.Lat > 90 {
		return errors.New("lat is required and must be between -90 and 90")
	}
	if r.Lng == nil || *r.Lng < -180 || *r.Lng > 180 {
		return errors.New("lng is required and must be between -180 and 180")
	}
	if r.Accuracy != nil && (*r.Accuracy < 0 || *r.Accuracy > 10000) {
		return errors.New("accuracy must be between 0 and 10000 meters")
	}
	if r.Level != nil && !allowedLevels[*r.Level] {
		return errors.New("level must be one of 100, 200, 300, 400, 500, 600")
	}
	return nil
}

func (r *submitRequest) toSubmission(userAgent, clientIP string) attendance.Submission {
	var info device.Info
	if r.DeviceInfo != nil {
		info = *r.DeviceInfo
	}
	return attendance.Submission{
		MatricNo:    r.MatricNo,
		SessionCode: r.SessionCode,
		Lat:         *r.Lat,
		Lng:         *r.Lng,
		Accuracy:    r.Accuracy,
		Device:      info,
		UserAgent:   userAgent,
		ClientIP:    clientIP,
		Level:       r.Level,
	}
}
