package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/weeklog/core"
	"github.com/trezcool/weeklog/core/user"
)

const importFileField = "file"

var userOrderingFields = []string{"username", "name", "email", "role", "department", "created_at"}

type userAPI struct {
	conf       *core.Config
	svc        user.Service
	validate   *validator.Validate
	translator ut.Translator
}

func registerUserAPI(g *echo.Group, jwt, sess echo.MiddlewareFunc, opts Options) {
	api := userAPI{
		conf:       opts.Conf,
		svc:        opts.UserSvc,
		validate:   opts.Validate,
		translator: opts.Translator,
	}

	ug := g.Group("/users")

	// un-authed endpoints
	ug.POST("/login", api.login)

	// authed endpoints
	ag := ug.Group("", jwt, sess)
	ag.POST("/token-refresh", api.refreshToken)
	ag.POST("/password-change", api.changePassword)
	ag.GET("/me", api.me)

	// admin endpoints
	adm := ag.Group("", passwordChangedMiddleware, adminMiddleware)
	adm.POST("", api.create)
	adm.GET("", api.query)
	adm.POST("/import", api.importStudents)
	adm.GET("/roles", api.queryRoles)
}

// Handlers

func (api *userAPI) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Authenticate(ctx.Request().Context(), data.Username, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	return api.tokenResponse(ctx, usr)
}

func (api *userAPI) tokenResponse(ctx echo.Context, usr user.User) error {
	token, err := GenerateToken(NewClaims(usr, api.conf), api.conf.SecretKey)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, MustChangePassword: usr.MustChangePassword})
}

func (api *userAPI) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.conf)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	usr, _ := getContextUser(ctx)
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, MustChangePassword: usr.MustChangePassword})
}

func (api *userAPI) changePassword(ctx echo.Context) error {
	var data user.ChangePassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangePassword")
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	usr, err := api.svc.ChangePassword(ctx.Request().Context(), ctxUsr.ID, data)
	if err != nil {
		return errors.Wrap(err, "changing password")
	}
	// the new token no longer carries the temporary password flag
	return api.tokenResponse(ctx, usr)
}

func (api *userAPI) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userAPI) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	usr, err := api.svc.Create(ctx.Request().Context(), &ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userAPI) query(ctx echo.Context) error {
	var filter user.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	users, err := api.svc.Query(ctx.Request().Context(), ctxUsr, filter, bindOrdering(ctx, userOrderingFields...))
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, users)
}

// importStudents creates students from a CSV sent either as the "file" form field or as the raw body.
func (api *userAPI) importStudents(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	body := ctx.Request().Body
	if fh, ferr := ctx.FormFile(importFileField); ferr == nil {
		f, err := fh.Open()
		if err != nil {
			return errors.Wrap(err, "opening uploaded file")
		}
		defer func() { _ = f.Close() }()
		body = f
	}

	translate := func(errs validator.ValidationErrors) map[string]string {
		return core.TranslateErrors(errs, api.translator)
	}
	results, err := user.ImportStudentsCSV(ctx.Request().Context(), api.svc, &ctxUsr, body, translate)
	if err != nil {
		return errors.Wrap(err, "importing students")
	}

	resp := ImportResponse{Results: results}
	for _, r := range results {
		if r.Created {
			resp.Created++
		} else {
			resp.Failed++
		}
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *userAPI) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token              string `json:"token"`
		MustChangePassword bool   `json:"must_change_password"`
	}

	ImportResponse struct {
		Created int                 `json:"created"`
		Failed  int                 `json:"failed"`
		Results []user.ImportResult `json:"results"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}
