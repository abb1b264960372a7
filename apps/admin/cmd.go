package main

import (
	"flag"
	"fmt"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/weeklog/core"
	"github.com/trezcool/weeklog/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp             = errors.New("help provided")
	errPasswordMismatch = errors.New("passwords do not match")
)

type commandLine struct {
	usrSvc     user.Service
	translator ut.Translator
	migrate    func(command string, args ...string) error
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  createsuperadmin -username USERNAME -email EMAIL -name NAME - create a super admin account")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Println("  migrate COMMAND [ARGS] - run database migrations (up, down, status, ...)")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	createCmd := flag.NewFlagSet("createsuperadmin", flag.ContinueOnError)
	createUname := createCmd.String("username", "", "The account username.")
	createEmail := createCmd.String("email", "", "The account email.")
	createName := createCmd.String("name", "", "The account full name. The password will be prompted next.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	switch args[1] {
	case "createsuperadmin":
		if err := createCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *createUname == "" || *createEmail == "" || *createName == "" {
			createCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword(true)
		if err != nil {
			return err
		}
		if pwd == "" {
			createCmd.Usage()
			return errHelp
		}
		return cli.createSuperAdmin(*createUname, *createEmail, *createName, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword(false)
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2], args[3:]...)

	default:
		cli.printUsage()
		return errHelp
	}
}

// promptPassword reads a password from the terminal, twice when confirm is set.
func promptPassword(confirm bool) (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	if !confirm || len(pwd) == 0 {
		return string(pwd), nil
	}

	fmt.Print("Confirm password:")
	pwd2, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	if string(pwd) != string(pwd2) {
		return "", errPasswordMismatch
	}
	return string(pwd), nil
}

// describe renders validation errors field by field.
func (cli *commandLine) describe(err error) string {
	return core.DescribeError(err, cli.translator)
}
