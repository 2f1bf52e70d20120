package container

import (
	app "eyecare-bot/internal/application"
	"eyecare-bot/internal/domain/port"
)

type Container struct {
	UserService      *app.UserService
	DiagnosisService *app.DiagnosisService
}

func New(
	userRepo port.UserRepository,
	reportRepo port.ReportRepository,
	localizer port.Localizer,
	classifier port.Classifier,
	images port.ImageProcessor,
	blobs port.BlobStore,
	advisor port.Advisor,
) *Container {
	userService := app.NewUserService(userRepo)
	diagnosisService := app.NewDiagnosisService(localizer, classifier, images, blobs, reportRepo, advisor)

	return &Container{
		UserService:      userService,
		DiagnosisService: diagnosisService,
	}
}
