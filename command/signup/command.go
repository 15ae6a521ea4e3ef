package signup

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/draganm/inviteflow/common/client"
	"github.com/draganm/inviteflow/common/serverurl"
	"github.com/draganm/inviteflow/signup"
	"github.com/urfave/cli/v2"
)

var Command = &cli.Command{
	Name:      "signup",
	Usage:     "invite an email address, or send a reset link when it already has an account",
	ArgsUsage: "EMAIL",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name: "full-name",
		},
		&cli.StringFlag{
			Name: "phone",
		},
		&cli.StringFlag{
			Name:    "server-url",
			EnvVars: []string{"INVITEFLOW_SERVER_URL"},
		},
	},
	Action: func(c *cli.Context) (err error) {
		defer func() {
			if err != nil {
				err = cli.Exit(fmt.Errorf("while signing up: %w", err), 1)
			}
		}()

		if c.NArg() != 1 {
			return fmt.Errorf("expected one argument (email), got %d", c.NArg())
		}

		su, err := serverurl.ServerURL(c.String("server-url"))
		if err != nil {
			return err
		}

		res := &signup.Result{}
		err = client.CallAPI(
			c.Context,
			su,
			"POST", "api/auth/signup",
			nil,
			nil,
			client.JSONEncoder(signup.Request{
				FullName: c.String("full-name"),
				Phone:    c.String("phone"),
				Email:    c.Args().First(),
			}),
			client.JSONDecoder(res),
			200,
		)

		se := &client.StatusError{}
		if errors.As(err, &se) {
			er := struct {
				Error string `json:"error"`
			}{}
			if json.Unmarshal(se.Body, &er) == nil && er.Error != "" {
				return fmt.Errorf("server rejected signup (%s): %s", se.Status, er.Error)
			}
		}

		if err != nil {
			return err
		}

		fmt.Printf("%s (%s)\n", res.Message, res.Mode)

		return nil
	},
}
