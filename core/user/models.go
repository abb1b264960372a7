package user

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/weeklog/core"
)

// AllDepartments is the department of super admins.
const AllDepartments = "ALL"

// Role is the closed set of account roles.
type Role string

const (
	RoleStudent         Role = "student"
	RoleDepartmentAdmin Role = "department_admin"
	RoleSuperAdmin      Role = "super_admin"
)

var (
	AllRoles = []Role{RoleStudent, RoleDepartmentAdmin, RoleSuperAdmin}

	rolePriorities = map[Role]int{
		RoleSuperAdmin:      30,
		RoleDepartmentAdmin: 20,
		RoleStudent:         10,
	}

	Roles = []RoleInfo{
		{Name: "Student", Value: RoleStudent},
		{Name: "Department Admin", Value: RoleDepartmentAdmin},
		{Name: "Super Admin", Value: RoleSuperAdmin},
	}
)

// ParseRole validates a role received at the boundary.
func ParseRole(s string) (Role, error) {
	r := Role(core.CleanString(s, true /* lower */))
	if _, ok := rolePriorities[r]; !ok {
		return "", ErrInvalidRole
	}
	return r, nil
}

func (r Role) Priority() int { return rolePriorities[r] }
func (r Role) IsAdmin() bool  { return r == RoleDepartmentAdmin || r == RoleSuperAdmin }
func (r Role) String() string { return string(r) }

type RoleInfo struct {
	Name  string `json:"name"`
	Value Role   `json:"value"`
}

type User struct {
	ID                 string    `json:"id"`
	Username           string    `json:"username"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	Role               Role      `json:"role"`
	Department         string    `json:"department"`
	SupervisorEmail    string    `json:"supervisor_email,omitempty"`
	PasswordHash       []byte    `json:"-"`
	MustChangePassword bool      `json:"must_change_password"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"` // UTC
	UpdatedAt          time.Time `json:"updated_at"` // UTC
	LastLogin          time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsStudent() bool    { return u.Role == RoleStudent }
func (u *User) IsAdmin() bool      { return u.Role.IsAdmin() }
func (u *User) IsSuperAdmin() bool { return u.Role == RoleSuperAdmin }

// CanAccessDepartment reports whether u may see or manage accounts and logs of dept.
func (u *User) CanAccessDepartment(dept string) bool {
	if u.IsSuperAdmin() {
		return true
	}
	return u.IsAdmin() && u.Department == dept
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Username        string `json:"username" validate:"required,min=3,max=150,alphanum_"`
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Role            string `json:"role" validate:"required,role"`
	Department      string `json:"department"`
	SupervisorEmail string `json:"supervisor_email" validate:"omitempty,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

// Clean normalizes the input before validation.
func (nu *NewUser) Clean() {
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	nu.Department = core.CleanString(nu.Department)
	nu.SupervisorEmail = core.CleanString(nu.SupervisorEmail, true /* lower */)
	if Role(nu.Role) == RoleSuperAdmin {
		nu.Department = AllDepartments
	}
}

// ChangePassword is the input of a password change by the account owner.
type ChangePassword struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`

	// user attributes checked by the password policy
	name, username, email string
}

type GetFilter struct {
	ID              string
	UsernameOrEmail string
}

type QueryFilter struct {
	Search     string `query:"search"`
	Role       string `query:"role"`
	Department string `query:"department"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
	qf.Department = core.CleanString(qf.Department)
}
