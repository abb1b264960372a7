package main

import (
	"context"
	"fmt"

	"github.com/trezcool/weeklog/core/user"
)

// createSuperAdmin provisions the first account of a deployment. Its password must be changed on first login.
func (cli *commandLine) createSuperAdmin(uname, email, name, pwd string) error {
	usr, err := cli.usrSvc.Create(context.Background(), nil, user.NewUser{
		Username:        uname,
		Name:            name,
		Email:           email,
		Role:            string(user.RoleSuperAdmin),
		Password:        pwd,
		PasswordConfirm: pwd,
	})
	if err != nil {
		return err
	}
	fmt.Printf("super admin %q created\n", usr.Username)
	return nil
}
