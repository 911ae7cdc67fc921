// Package models holds the camera components exported by this module.
package models

import (
	"context"
	"errors"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/data"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/rimage"
	genericservice "go.viam.com/rdk/services/generic"
	"go.viam.com/rdk/spatialmath"
	rutils "go.viam.com/rdk/utils"

	vision "github.com/SimonPBoeckner/Vision"
)

var (
	OverlayCamera = resource.NewModel("simonpboeckner", "vision", "overlay-camera")
)

func init() {
	resource.RegisterComponent(camera.API, OverlayCamera,
		resource.Registration[camera.Camera, *OverlayCameraConfig]{
			Constructor: newOverlayCamera,
		},
	)
}

type OverlayCameraConfig struct {
	LocalizerName string `json:"localizer"` // Name of the localizer service producing overlay frames
}

// Validate ensures all parts of the config are valid and important fields exist.
// Returns implicit dependencies based on the config.
// The path is the JSON path in your robot's config (not the `Config` struct) to the
// resource being validated; e.g. "components.0".
func (cfg *OverlayCameraConfig) Validate(path string) ([]string, []string, error) {
	if cfg.LocalizerName == "" {
		return nil, nil, errors.New("localizer is required")
	}
	return []string{cfg.LocalizerName}, nil, nil
}

type overlayCamera struct {
	name       resource.Name
	logger     logging.Logger
	cfg        *OverlayCameraConfig
	cancelCtx  context.Context
	cancelFunc func()
	session    *vision.OverlaySession
}

func newOverlayCamera(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (camera.Camera, error) {
	conf, err := resource.NativeConfig[*OverlayCameraConfig](rawConf)
	if err != nil {
		return nil, err
	}

	session, err := acquireSession(deps, conf.LocalizerName)
	if err != nil {
		return nil, err
	}

	cancelCtx, cancelFunc := context.WithCancel(context.Background())

	s := &overlayCamera{
		name:       rawConf.ResourceName(),
		logger:     logger,
		cfg:        conf,
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
		session:    session,
	}
	return s, nil
}

// acquireSession looks up the localizer service and opens an overlay session on
// it. While at least one session is open the localizer spends the extra cycles
// drawing detections onto frames.
func acquireSession(deps resource.Dependencies, name string) (*vision.OverlaySession, error) {
	res, err := resource.FromDependencies[resource.Resource](deps, genericservice.Named(name))
	if err != nil {
		return nil, err
	}
	provider, ok := res.(vision.OverlayProvider)
	if !ok {
		return nil, errors.New(name + " does not produce overlay frames")
	}
	return provider.AcquireOverlay(), nil
}

func (s *overlayCamera) Reconfigure(ctx context.Context, deps resource.Dependencies, rawConf resource.Config) error {
	conf, err := resource.NativeConfig[*OverlayCameraConfig](rawConf)
	if err != nil {
		return err
	}

	session, err := acquireSession(deps, conf.LocalizerName)
	if err != nil {
		return err
	}

	s.session.Close()
	s.cfg = conf
	s.session = session
	return nil
}

func (s *overlayCamera) Name() resource.Name {
	return s.name
}

func (s *overlayCamera) Close(context.Context) error {
	s.cancelFunc()
	s.session.Close()
	return nil
}

func (s *overlayCamera) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	return nil, nil
}

func (s *overlayCamera) Image(ctx context.Context, mimeType string, extra map[string]interface{}) ([]byte, camera.ImageMetadata, error) {
	img := s.session.LatestFrame()
	if img == nil {
		return nil, camera.ImageMetadata{}, errors.New("no overlay frame published yet")
	}
	if mimeType == "" {
		mimeType = rutils.MimeTypeJPEG
	}
	encoded, err := rimage.EncodeImage(ctx, img, mimeType)
	if err != nil {
		return nil, camera.ImageMetadata{}, err
	}
	return encoded, camera.ImageMetadata{MimeType: mimeType}, nil
}

func (s *overlayCamera) Images(ctx context.Context, filterSourceNames []string, extra map[string]interface{}) ([]camera.NamedImage, resource.ResponseMetadata, error) {
	img := s.session.LatestFrame()
	if img == nil {
		return nil, resource.ResponseMetadata{}, errors.New("no overlay frame published yet")
	}
	named, err := camera.NamedImageFromImage(img, "overlay", rutils.MimeTypeJPEG, data.Annotations{})
	if err != nil {
		return nil, resource.ResponseMetadata{}, err
	}
	return []camera.NamedImage{named}, resource.ResponseMetadata{}, nil
}

func (s *overlayCamera) NextPointCloud(ctx context.Context, extra map[string]interface{}) (pointcloud.PointCloud, error) {
	return nil, errors.New("next point cloud not implemented")
}

func (s *overlayCamera) Properties(ctx context.Context) (camera.Properties, error) {
	return camera.Properties{}, nil
}

func (s *overlayCamera) Geometries(ctx context.Context, extra map[string]interface{}) ([]spatialmath.Geometry, error) {
	return nil, nil
}
