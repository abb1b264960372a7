package echoapi

import (
	"net/http"
	"net/mail"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/weeklog/core"
)

type (
	mailAPI struct {
		svc      core.EmailService
		validate *validator.Validate
	}

	TestMailRequest struct {
		Email string `json:"email" validate:"required,email"`
	}
)

func registerMailAPI(g *echo.Group, jwt, sess echo.MiddlewareFunc, svc core.EmailService, validate *validator.Validate) {
	api := mailAPI{svc: svc, validate: validate}

	mg := g.Group("/mail", jwt, sess, passwordChangedMiddleware, adminMiddleware)
	mg.POST("/test", api.sendTest)
}

// sendTest checks the mail configuration by sending the test_email template.
// Unlike verification emails, a failure here is reported to the caller.
func (api *mailAPI) sendTest(ctx echo.Context) error {
	var data TestMailRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TestMailRequest")
	}
	data.Email = core.CleanString(data.Email, true /* lower */)
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{{Address: data.Email}},
		Subject:      "Test Email",
		TemplateName: "test_email",
	}
	if err := api.svc.SendMessage(ctx.Request().Context(), msg); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "sending test email failed").SetInternal(err)
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "test email sent to " + data.Email})
}
