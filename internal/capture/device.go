// Package capture manages exclusive access to one camera device and
// forwards decoder results from the active session only.
package capture

import (
	"context"
)

// Camera describes one capture device a Device can open.
type Camera struct {
	ID     string
	Label  string
	Facing Facing
}

// Facing is the direction a camera points.
type Facing string

const (
	FacingUnknown Facing = ""
	FacingBack    Facing = "environment"
	FacingFront   Facing = "user"
)

// Capabilities are discovered once a track is running.
type Capabilities struct {
	Torch bool
}

// FrameHandler receives every decode result of a running track. It may be
// called many times per second and many times for one physical code.
type FrameHandler func(payload, symbology string)

// Device is a camera backend plus its decoder.
//
// Open returns model.ErrPermissionDenied (matched with errors.Is) when the
// user refused access, and model.ErrDeviceBusy when the camera is held.
type Device interface {
	Cameras(ctx context.Context) ([]Camera, error)
	Open(ctx context.Context, cameraID string, onFrame FrameHandler) (Track, error)
}

// Track is a running camera stream.
type Track interface {
	Capabilities() Capabilities
	SetTorch(ctx context.Context, on bool) error
	Close(ctx context.Context) error
}

// pickCamera prefers the camera with the given ID, then the first
// back-facing camera, then the first camera.
func pickCamera(cams []Camera, preferred string) Camera {
	if preferred != "" {
		for _, c := range cams {
			if c.ID == preferred {
				return c
			}
		}
	}
	for _, c := range cams {
		if c.Facing == FacingBack {
			return c
		}
	}
	return cams[0]
}
