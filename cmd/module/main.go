package main

import (
	vision "github.com/SimonPBoeckner/Vision"
	"github.com/SimonPBoeckner/Vision/models"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"
	generic "go.viam.com/rdk/services/generic"
)

func main() {
	// ModularMain can take multiple APIModel arguments, if your module implements multiple models.
	module.ModularMain(
		resource.APIModel{API: generic.API, Model: vision.Localizer},
		resource.APIModel{API: camera.API, Model: models.OverlayCamera},
	)
}
