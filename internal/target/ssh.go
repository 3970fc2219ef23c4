package target

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"depotdeck/internal/config"
	"depotdeck/internal/services"
)

// sshCommandError carries a remote command's exit status and stderr.
type sshCommandError struct {
	Command string
	Status  int
	Stderr  string
}

func (e *sshCommandError) Error() string {
	msg := fmt.Sprintf("remote command exited %d", e.Status)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (d Descriptor) address() string {
	port := d.Port
	if port <= 0 {
		port = 22
	}
	return net.JoinHostPort(d.Host, strconv.Itoa(port))
}

// clientConfig builds the SSH client configuration. Host keys are not
// verified, matching the rsync transport's StrictHostKeyChecking=no.
func (d Descriptor) clientConfig(timeout time.Duration) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if strings.TrimSpace(d.KeyPath) != "" {
		keyPath, err := config.ExpandPath(d.KeyPath)
		if err != nil {
			return nil, err
		}
		buffer, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		var signer ssh.Signer
		if d.Password != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(buffer, []byte(d.Password))
			if err != nil {
				signer, err = ssh.ParsePrivateKey(buffer)
			}
		} else {
			signer, err = ssh.ParsePrivateKey(buffer)
		}
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if d.Password != "" {
		password := d.Password
		auth = append(auth,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}
	return &ssh.ClientConfig{
		User:            d.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}, nil
}

// dialSSH opens an authenticated client, honouring ctx during the handshake.
func dialSSH(ctx context.Context, d Descriptor, timeout time.Duration) (*ssh.Client, error) {
	cfg, err := d.clientConfig(timeout)
	if err != nil {
		return nil, services.Wrap(services.ErrAuthFailed, "target", "ssh", "credentials", err)
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.address())
	if err != nil {
		return nil, services.Wrap(services.ErrTargetUnreachable, "target", "ssh", d.address(), err)
	}
	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, d.address(), cfg)
	if err != nil {
		conn.Close()
		return nil, services.Wrap(services.ErrAuthFailed, "target", "ssh", "handshake with "+d.address(), err)
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}

// runSSH executes command in a new session, feeding stdin when non-nil.
// Cancelling ctx closes the session.
func runSSH(ctx context.Context, client *ssh.Client, command string, stdin io.Reader) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "target", "ssh", "open session", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != nil {
		session.Stdin = stdin
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		session.Close()
		<-done
		return stdout.String(), ctx.Err()
	case err = <-done:
	}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), &sshCommandError{
				Command: command,
				Status:  exitErr.ExitStatus(),
				Stderr:  strings.TrimSpace(stderr.String()),
			}
		}
		return stdout.String(), services.Wrap(services.ErrTransient, "target", "ssh", "run command", err)
	}
	return stdout.String(), nil
}

// shellQuote single-quotes s for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
