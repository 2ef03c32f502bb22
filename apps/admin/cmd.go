package main

import (
	"errors"
	"flag"
	"fmt"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/tatumdale/studystreaks/core"
	"github.com/tatumdale/studystreaks/core/principal"
	"github.com/tatumdale/studystreaks/core/school"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db      *sqlx.DB
	conf    *core.Config
	schSvc  *school.Service
	prinSvc *principal.Service
	repo    principal.Repository
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate up|down|redo|status|version       - run database migrations")
	fmt.Println("  addschool -id ID -name NAME [-urn URN] [-dfe DFE]")
	fmt.Println("                                            - register a school")
	fmt.Println("  adduser -school ID -email EMAIL -type TYPE -name NAME")
	fmt.Println("                                            - create an account; the password is prompted next")
	fmt.Println("  resetpassword -email EMAIL                - reset an account's password")
	fmt.Println("  unlock -email EMAIL                       - clear an account's login lockout")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addSchoolCmd := flag.NewFlagSet("addschool", flag.ExitOnError)
	addSchoolID := addSchoolCmd.String("id", "", "The school's unique identifier.")
	addSchoolName := addSchoolCmd.String("name", "", "The school's display name.")
	addSchoolURN := addSchoolCmd.String("urn", "", "The school's unique reference number.")
	addSchoolDfE := addSchoolCmd.String("dfe", "", "The school's DfE establishment number.")

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserSchool := addUserCmd.String("school", "", "The account's school identifier.")
	addUserEmail := addUserCmd.String("email", "", "The account's email. The password will be prompted next.")
	addUserType := addUserCmd.String("type", "", "The profile type: teacher|student|parent|schoolAdmin.")
	addUserName := addUserCmd.String("name", "", "The profile display name.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The account's email. The password will be prompted next.")

	unlockCmd := flag.NewFlagSet("unlock", flag.ExitOnError)
	unlockEmail := unlockCmd.String("email", "", "The account's email.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "addschool":
		if err := addSchoolCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addSchoolID == "" || *addSchoolName == "" {
			addSchoolCmd.Usage()
			return errHelp
		}
		return cli.addSchool(*addSchoolID, *addSchoolName, *addSchoolURN, *addSchoolDfE)
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserSchool == "" || *addUserEmail == "" || *addUserType == "" || *addUserName == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		return cli.addUser(*addUserSchool, *addUserEmail, *addUserType, *addUserName, pwd)
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)
	case "unlock":
		if err := unlockCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *unlockEmail == "" {
			unlockCmd.Usage()
			return errHelp
		}
		return cli.unlock(*unlockEmail)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", errHelp
	}
	return string(pwd), nil
}
