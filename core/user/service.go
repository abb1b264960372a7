package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/weeklog/core"
)

var (
	// errors
	ErrNotFound             = errors.New("user not found")
	ErrEmailExists          = errors.New("a user with this email already exists")
	ErrUsernameExists       = errors.New("a user with this username already exists")
	ErrInvalidRole          = errors.New("invalid role")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrAccountDeactivated   = errors.New("account deactivated")
	ErrForbidden            = errors.New("permission denied")
	ErrWrongPassword        = errors.New("current password is incorrect")

	errNoPermsToSetRole = "not enough rights to set this role"
	errNoPermsForDept   = "not enough rights to manage this department"
)

type (
	Repository interface {
		// CheckUsernameUniqueness returns ErrUsernameExists or ErrEmailExists if any user, except excludedUsers, holds them.
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	Service interface {
		// Create provisions a new account on behalf of creator. A nil creator is the system itself (CLI).
		Create(ctx context.Context, creator *User, nu NewUser) (User, error)
		Authenticate(ctx context.Context, usernameOrEmail, pwd string) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		// Query lists the accounts viewer is allowed to see.
		Query(ctx context.Context, viewer User, filter QueryFilter, ordering []core.DBOrdering) ([]User, error)
		ChangePassword(ctx context.Context, id string, cp ChangePassword) (User, error)
		// ResetPassword sets a temporary password that must be changed on next login.
		ResetPassword(ctx context.Context, usernameOrEmail, pwd string) (User, error)
	}

	service struct {
		repo     Repository
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, validate *validator.Validate) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(validate, "validate"),
	).CheckAndPanic()

	return &service{repo: repo, validate: validate}
}

func (svc *service) checkUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, email, exclUsers...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return errors.Wrap(err, "checking uniqueness")
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// authorizeCreate enforces department scoping: creators cannot set a role >= their own
// (super admins excepted) nor act outside their department.
func authorizeCreate(creator *User, role Role, dept string) error {
	if creator == nil || creator.IsSuperAdmin() {
		return nil
	}
	if !creator.IsAdmin() {
		return ErrForbidden
	}
	if role.Priority() >= creator.Role.Priority() {
		return core.NewValidationError(ErrForbidden, core.FieldError{Field: "role", Error: errNoPermsToSetRole})
	}
	if dept != creator.Department {
		return core.NewValidationError(ErrForbidden, core.FieldError{Field: "department", Error: errNoPermsForDept})
	}
	return nil
}

func (svc *service) Create(ctx context.Context, creator *User, nu NewUser) (User, error) {
	nu.Clean()
	if creator != nil && creator.IsAdmin() && !creator.IsSuperAdmin() && nu.Department == "" {
		nu.Department = creator.Department
	}
	if err := svc.validate.Struct(nu); err != nil {
		return User{}, err
	}
	role, err := ParseRole(nu.Role)
	if err != nil {
		return User{}, err
	}
	if err = authorizeCreate(creator, role, nu.Department); err != nil {
		return User{}, err
	}
	if err = svc.checkUniqueness(ctx, nu.Username, nu.Email); err != nil {
		return User{}, err
	}

	now := time.Now().UTC()
	usr := User{
		Username:           nu.Username,
		Name:               nu.Name,
		Email:              nu.Email,
		Role:               role,
		Department:         nu.Department,
		MustChangePassword: true,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if role == RoleStudent {
		usr.SupervisorEmail = nu.SupervisorEmail
	}
	if err = usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr, err = svc.repo.CreateUser(ctx, usr)
	return usr, errors.Wrap(err, "creating user")
}

func (svc *service) Authenticate(ctx context.Context, usernameOrEmail, pwd string) (User, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx, usernameOrEmail)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrAuthenticationFailed
		}
		return User{}, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrAuthenticationFailed
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}

	usr.LastLogin = time.Now().UTC()
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "setting lastLogin")
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	uname = core.CleanString(uname, true /* lower */)
	if uname == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: uname})
}

func (svc *service) Query(ctx context.Context, viewer User, filter QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	if !viewer.IsAdmin() {
		return nil, ErrForbidden
	}
	filter.Clean()
	if !viewer.IsSuperAdmin() {
		filter.Department = viewer.Department
	}
	if filter.Role != "" {
		if _, err := ParseRole(filter.Role); err != nil {
			return []User{}, nil
		}
	}
	users, err := svc.repo.QueryUsers(ctx, filter, ordering)
	return users, errors.Wrap(err, "querying users")
}

func (svc *service) ChangePassword(ctx context.Context, id string, cp ChangePassword) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if err = usr.CheckPassword(cp.CurrentPassword); err != nil {
		return User{}, core.NewValidationError(ErrWrongPassword, core.FieldError{Field: "current_password", Error: ErrWrongPassword.Error()})
	}
	cp.name, cp.username, cp.email = usr.Name, usr.Username, usr.Email
	if err = svc.validate.Struct(cp); err != nil {
		return User{}, err
	}

	if err = usr.SetPassword(cp.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr.MustChangePassword = false
	usr.UpdatedAt = time.Now().UTC()
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}

func (svc *service) ResetPassword(ctx context.Context, usernameOrEmail, pwd string) (User, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx, usernameOrEmail)
	if err != nil {
		return User{}, err
	}
	if tag := checkPassword(pwd, usr.Name, usr.Username, usr.Email); tag != "" {
		return User{}, core.NewValidationError(nil, core.FieldError{Field: "password", Error: policyText(tag)})
	}
	if err = usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr.MustChangePassword = true
	usr.UpdatedAt = time.Now().UTC()
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}
