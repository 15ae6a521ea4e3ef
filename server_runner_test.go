package main_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

type runningServer struct {
	serverURL string
	shutdown  func() error

	mu     *sync.Mutex
	emails []map[string]string
}

func startServer(binaryPath string) (*runningServer, error) {
	td, err := os.MkdirTemp("", "inviteflow-test")
	if err != nil {
		return nil, fmt.Errorf("while creating test temp dir: %w", err)
	}

	defer func() {
		if err != nil {
			os.RemoveAll(td)
		}
	}()

	wd := filepath.Join(td, "work")
	err = os.Mkdir(wd, 0700)
	if err != nil {
		return nil, fmt.Errorf("while creating server work dir: %w", err)
	}

	cmd := exec.Command(binaryPath, "server")
	cmd.Dir = td
	cmd.Env = append(
		os.Environ(),
		"ADDR=localhost:0",
		"AUTH_PROVIDER=mock",
		"PROFILE_STORE=bolted",
		"SESSION_STORE=bolted",
		fmt.Sprintf("HOME=%s", td),
		fmt.Sprintf("WORK_DIR=%s", wd),
	)

	opr, opw := io.Pipe()
	output := new(bytes.Buffer)
	outWriter := io.MultiWriter(opw, output)
	cmd.Stdout = outWriter
	cmd.Stderr = outWriter

	logChan := make(chan map[string]string)
	processDoneChan := make(chan int)
	go parseLogs(opr, logChan)

	err = cmd.Start()
	if err != nil {
		return nil, fmt.Errorf("while starting server: %w", err)
	}

	go func() {
		st, err := cmd.Process.Wait()
		if err != nil {
			fmt.Println(fmt.Errorf("while waiting for the process: %w", err))
			return
		}
		opw.Close()
		processDoneChan <- st.ExitCode()
	}()

	timer := time.NewTimer(5 * time.Second)

	rs := &runningServer{
		mu: new(sync.Mutex),
	}

	for rs.serverURL == "" {
		select {
		case <-processDoneChan:
			return nil, fmt.Errorf("server has died before properly starting:\n%s\n", output.String())
		case <-timer.C:
			return nil, fmt.Errorf("server did not start within 5 seconds:\n%s\n", output.String())
		case log := <-logChan:
			if log["msg"] == "server listening" {
				rs.serverURL = fmt.Sprintf("http://%s", log["addr"])
			}
		}
	}

	go func() {
		for log := range logChan {
			if log["msg"] == "email sent" {
				rs.mu.Lock()
				rs.emails = append(rs.emails, log)
				rs.mu.Unlock()
			}
		}
	}()

	rs.shutdown = func() error {
		select {
		case <-processDoneChan:
			// all good, server is down
		default:
			err = cmd.Process.Signal(os.Interrupt)
			if err != nil {
				return fmt.Errorf("while stopping process: %w", err)
			}
			select {
			case <-time.NewTimer(3 * time.Second).C:
				return fmt.Errorf("timed out while shutting down server")
			case <-processDoneChan:
				// all good, server is down now, continue
			}
		}

		return os.RemoveAll(td)
	}

	return rs, nil

}

// lastEmail returns the last "email sent" log line for the address.
func (rs *runningServer) lastEmail(to string) (map[string]string, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for i := len(rs.emails) - 1; i >= 0; i-- {
		if rs.emails[i]["to"] == to {
			return rs.emails[i], true
		}
	}
	return nil, false
}

func parseLogs(r io.Reader, lines chan map[string]string) {
	defer close(lines)

	dec := json.NewDecoder(r)

	for {
		raw := map[string]interface{}{}
		err := dec.Decode(&raw)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				// drain so the server never blocks on a full pipe
				io.Copy(io.Discard, r)
			}
			return
		}
		vals := map[string]string{}
		for k, v := range raw {
			vals[k] = fmt.Sprint(v)
		}
		lines <- vals
	}
}
