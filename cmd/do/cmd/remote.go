package cmd

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

type remoteOptions struct {
	host     string // user@host
	port     string
	keyPath  string
	service  string
	insecure bool
}

// RemoteCmd inspects a deployed server over SSH.
func RemoteCmd() *cobra.Command {
	opts := &remoteOptions{}

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Inspect the deployed homebase service over SSH",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.host == "" {
				return fmt.Errorf("--host is required or set SSH_HOST env")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.host, "host", os.Getenv("SSH_HOST"), "SSH host (user@host) or set SSH_HOST env")
	cmd.PersistentFlags().StringVar(&opts.port, "port", "22", "SSH port")
	cmd.PersistentFlags().StringVar(&opts.keyPath, "key", "", "Path to SSH private key (default: ~/.ssh/id_ed25519)")
	cmd.PersistentFlags().StringVar(&opts.service, "service", "homebase", "systemd unit name")
	cmd.PersistentFlags().BoolVar(&opts.insecure, "insecure", false, "skip host key verification")

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the systemd state of the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := opts.run("systemctl show " + shellQuote(opts.service) + " --no-pager --property=ActiveState,SubState,MainPID,ExecMainStartTimestamp")
			if err != nil {
				return err
			}
			props := parseProperties(out)
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s %-10s %-8s %s\n", "ACTIVE", "SUB", "PID", "STARTED")
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s %-10s %-8s %s\n", props["ActiveState"], props["SubState"], props["MainPID"], props["ExecMainStartTimestamp"])
			return nil
		},
	})

	var lines int
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Print recent service logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := opts.run("journalctl -u " + shellQuote(opts.service) + " -n " + strconv.Itoa(lines) + " --no-pager -o cat")
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	logsCmd.Flags().IntVarP(&lines, "lines", "n", 100, "number of log lines")
	cmd.AddCommand(logsCmd)

	var appPort string
	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Call /healthz on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := opts.run("curl -fsS http://127.0.0.1:" + shellQuote(appPort) + "/healthz")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(out))
			return nil
		},
	}
	healthCmd.Flags().StringVar(&appPort, "app-port", "8090", "port the server listens on")
	cmd.AddCommand(healthCmd)

	return cmd
}

func (o *remoteOptions) run(command string) (string, error) {
	client, err := o.connect()
	if err != nil {
		return "", fmt.Errorf("ssh connect: %w", err)
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("ssh session: %w", err)
	}
	defer func() { _ = session.Close() }()

	output, err := session.CombinedOutput(command)
	if err != nil {
		return "", fmt.Errorf("remote command failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

func (o *remoteOptions) connect() (*ssh.Client, error) {
	auth, err := authMethods(o.keyPath)
	if err != nil {
		return nil, err
	}

	hostKeys, err := o.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	user, host := splitTarget(o.host)
	addr := net.JoinHostPort(host, o.port)
	client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return client, nil
}

func (o *remoteOptions) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if o.insecure {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	cb, err := knownhosts.New(filepath.Join(home, ".ssh", "known_hosts"))
	if err != nil {
		return nil, fmt.Errorf("load known_hosts (or pass --insecure): %w", err)
	}
	return cb, nil
}

// authMethods prefers a loaded ssh-agent and falls back to a key file.
func authMethods(keyPath string) ([]ssh.AuthMethod, error) {
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" && keyPath == "" {
		conn, err := net.Dial("unix", sock)
		if err == nil {
			agentClient := agent.NewClient(conn)
			keys, err := agentClient.List()
			if err == nil && len(keys) > 0 {
				return []ssh.AuthMethod{ssh.PublicKeysCallback(agentClient.Signers)}, nil
			}
			_ = conn.Close()
		}
	}

	key, err := readKey(keyPath)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse key (use ssh-add to load passphrase-protected keys): %w", err)
	}
	return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
}

func readKey(keyPath string) ([]byte, error) {
	if keyPath != "" {
		key, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("read key %s: %w", keyPath, err)
		}
		return key, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	names := []string{"id_ed25519", "id_ecdsa", "id_rsa"}
	for _, name := range names {
		key, err := os.ReadFile(filepath.Join(home, ".ssh", name))
		if err == nil {
			return key, nil
		}
	}
	return nil, fmt.Errorf("no SSH key found in ~/.ssh (tried: %v)", names)
}

// splitTarget splits user@host; the user defaults to root.
func splitTarget(target string) (string, string) {
	user, host, ok := strings.Cut(target, "@")
	if !ok {
		return "root", target
	}
	return user, host
}

// parseProperties reads `systemctl show` Key=Value output.
func parseProperties(out string) map[string]string {
	props := map[string]string{}
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), "=")
		if ok {
			props[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return props
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
