// Package server provides the HTTP proxy in front of the upstream video API.
// It includes handlers, middleware, routes, and DTOs separated from the
// client-side job types.
package server

import "encoding/json"

// Sora2CreateRequest is the body of POST /api/sora2/create.
type Sora2CreateRequest struct {
	// Images are first-frame image URLs or data URLs.
	Images []string `json:"images" validate:"omitempty,dive,required"`
	// Model defaults to sora-2.
	Model string `json:"model" validate:"omitempty,oneof=sora-2 sora-2-pro"`
	// Orientation is portrait or landscape.
	Orientation string `json:"orientation" validate:"omitempty,oneof=portrait landscape"`
	// Prompt is the generation instruction.
	Prompt string `json:"prompt"`
	// Size is small (720p) or large (1080p).
	Size string `json:"size" validate:"omitempty,oneof=small large"`
	// Duration is the clip length in seconds.
	Duration int `json:"duration" validate:"omitempty,min=1,max=60"`
	// Token is the caller's API key. Shorter than 16 characters means absent.
	Token string `json:"token,omitempty"`
}

// sora2UpstreamBody is what the upstream create endpoint receives for Sora2.
type sora2UpstreamBody struct {
	Images      []string `json:"images"`
	Model       string   `json:"model"`
	Orientation string   `json:"orientation"`
	Prompt      string   `json:"prompt"`
	Size        string   `json:"size"`
	Duration    int      `json:"duration"`
}

// Veo3CreateRequest is the body of POST /api/veo3/create.
type Veo3CreateRequest struct {
	Prompt  string       `json:"prompt" validate:"required"`
	Options *Veo3Options `json:"options,omitempty"`
	Token   string       `json:"token,omitempty"`
}

// Veo3Options are the optional generation settings of a Veo3 request.
type Veo3Options struct {
	Model          string   `json:"model,omitempty" validate:"omitempty,oneof=veo3 veo3-fast veo3-fast-frames veo3-frames veo3-pro veo3-pro-frames"`
	Images         []string `json:"images,omitempty"`
	EnhancePrompt  *bool    `json:"enhancePrompt,omitempty"`
	EnableUpsample *bool    `json:"enableUpsample,omitempty"`
	AspectRatio    string   `json:"aspectRatio,omitempty" validate:"omitempty,oneof=16:9 9:16"`
}

// veo3UpstreamBody is what the upstream create endpoint receives for Veo3.
type veo3UpstreamBody struct {
	Model          string   `json:"model"`
	Prompt         string   `json:"prompt"`
	EnhancePrompt  bool     `json:"enhance_prompt"`
	EnableUpsample bool     `json:"enable_upsample"`
	AspectRatio    string   `json:"aspect_ratio"`
	Images         []string `json:"images,omitempty"`
}

// Veo3CreateResponse is the answer of POST /api/veo3/create.
type Veo3CreateResponse struct {
	// ID is the upstream job id, kept in whatever JSON type upstream used.
	ID any `json:"id"`
	// Status is the upstream finish reason, or "submitted".
	Status string `json:"status"`
	// Response is the full upstream answer.
	Response json.RawMessage `json:"response"`
}

// ErrorResponse is the error body of every proxy route.
type ErrorResponse struct {
	// Error is the error code or message.
	Error string `json:"error"`
	// Detail is the upstream error body, when it was JSON.
	Detail json.RawMessage `json:"detail,omitempty"`
	// Message is a human-readable explanation.
	Message string `json:"message,omitempty"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
