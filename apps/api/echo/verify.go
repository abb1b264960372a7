package echoapi

import (
	"html/template"
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/weeklog/core/progress"
	appfs "github.com/trezcool/weeklog/fs"
)

const verifyTemplatePath = "templates/web/verify.gohtml"

var (
	errVerificationFailed = echo.NewHTTPError(http.StatusNotFound, "verification failed: this link is invalid or has already been used")

	verifyTmpl     *template.Template
	verifyTmplOnce sync.Once
	verifyTmplErr  error
)

type (
	verifyAPI struct {
		appName string
		svc     progress.Service
	}

	// VerifyResponse confirms the action applied by a verification link.
	VerifyResponse struct {
		Message string            `json:"message"`
		Status  progress.Status   `json:"status"`
		Entry   progress.LogEntry `json:"entry"`
	}

	verifyPage struct {
		AppName string
		Status  progress.Status
		Entry   *progress.LogEntry
		Error   string
	}
)

// registerVerifyAPI mounts the link followed by supervisors. It carries no session: the token is the credential.
func registerVerifyAPI(app *echo.Echo, appName string, svc progress.Service) {
	api := verifyAPI{appName: appName, svc: svc}
	app.GET("/verify", api.verify)
}

func (api *verifyAPI) verify(ctx echo.Context) error {
	le, ok, err := api.svc.Redeem(ctx.Request().Context(), ctx.QueryParam("token"), ctx.QueryParam("action"))
	if err == nil && !ok {
		err = errVerificationFailed
	}
	if err != nil {
		if wantsHTML(ctx) {
			if code, msg, known := verifyFailure(err); known {
				return api.render(ctx, code, verifyPage{AppName: api.appName, Error: msg})
			}
		}
		return errors.Wrap(err, "redeeming token")
	}

	// le is the entry as it was before the write
	le.Status, _ = progress.ParseAction(ctx.QueryParam("action"))

	if wantsHTML(ctx) {
		return api.render(ctx, http.StatusOK, verifyPage{AppName: api.appName, Status: le.Status, Entry: &le})
	}
	return ctx.JSON(http.StatusOK, VerifyResponse{
		Message: "log " + le.Status.String(),
		Status:  le.Status,
		Entry:   le,
	})
}

func (api *verifyAPI) render(ctx echo.Context, code int, page verifyPage) error {
	verifyTmplOnce.Do(func() {
		verifyTmpl, verifyTmplErr = template.ParseFS(appfs.FS, verifyTemplatePath)
	})
	if verifyTmplErr != nil {
		return errors.Wrap(verifyTmplErr, "parsing verify template")
	}

	var buf strings.Builder
	if err := verifyTmpl.Execute(&buf, page); err != nil {
		return errors.Wrap(err, "rendering verify template")
	}
	return ctx.HTML(code, buf.String())
}

// verifyFailure returns the status and message of the expected failures of a verification link.
func verifyFailure(err error) (int, string, bool) {
	cause := errors.Cause(err)
	if herr, ok := cause.(*echo.HTTPError); ok && herr == errVerificationFailed {
		return herr.Code, herr.Message.(string), true
	}
	if status, ok := errorStatus[cause]; ok && status == http.StatusBadRequest {
		return status, cause.Error(), true
	}
	return 0, "", false
}

// wantsHTML reports whether the link was opened by a browser.
func wantsHTML(ctx echo.Context) bool {
	return strings.Contains(ctx.Request().Header.Get(echo.HeaderAccept), echo.MIMETextHTML)
}
