package main

import (
	"fmt"
	"time"

	echoapi "github.com/bytedeck/deck/apps/api/echo"
)

func (cli *commandLine) token(username string, expires time.Duration) error {
	claims := echoapi.NewOperatorClaims(cli.conf.AppName, username, expires)
	token, err := echoapi.GenerateToken(claims, cli.conf.SecretKey)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}
