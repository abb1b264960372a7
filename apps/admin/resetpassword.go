package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	usr, err := cli.usrSvc.ResetPassword(context.Background(), uname, pwd)
	if err != nil {
		return err
	}
	fmt.Printf("password of %q reset; it must be changed on next login\n", usr.Username)
	return nil
}
