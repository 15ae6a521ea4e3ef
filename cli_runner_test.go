package main_test

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
)

func runCLI(args []string, env map[string]string, workDir, binaryPath string) (stdout, stderr string, err error) {

	cmd := exec.Command(binaryPath, args...)
	cmd.Dir = workDir
	cmd.Env = append(
		os.Environ(),
		fmt.Sprintf("HOME=%s", workDir),
	)

	for k, v := range env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stout := new(bytes.Buffer)
	sterr := new(bytes.Buffer)

	cmd.Stdout = stout
	cmd.Stderr = sterr

	err = cmd.Run()
	if err != nil {
		return stout.String(), sterr.String(), fmt.Errorf("while running cmd: %w", err)
	}

	return stout.String(), sterr.String(), nil

}
