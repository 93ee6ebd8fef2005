package cli

import (
	"bufio"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"

	"github.com/anchor-vcs/anchor/internal/client"
	"github.com/anchor-vcs/anchor/pkg/color"
)

var (
	loginUsername string
	sshKeyPath    string
)

var loginCmd = &cobra.Command{
	Use:   "login <server>",
	Short: "Log in to an anchor server with a password",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		server := args[0]
		username := loginUsername
		if username == "" {
			username = promptLine("Username: ")
		}
		password := promptPassword("Password: ")

		sess, err := client.LoadSession()
		if err != nil {
			fmtErr("load session: %v", err)
			os.Exit(1)
		}
		api := client.NewAPI(sess)
		needs2FA, err := api.Login(server, username, password)
		if err != nil {
			fmtErr("login failed: %v", err)
			os.Exit(1)
		}
		if needs2FA {
			code := promptLine("Two-factor code: ")
			if err := api.LoginTwoFactor(username, password, code); err != nil {
				fmtErr("login failed: %v", err)
				os.Exit(1)
			}
		}
		fmt.Printf("Logged in to %s as %s\n", server, color.Highlight(username))
	},
}

var sshLoginCmd = &cobra.Command{
	Use:   "ssh-login <server>",
	Short: "Log in by signing a server challenge with an SSH key",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		server := args[0]
		username := loginUsername
		if username == "" {
			username = promptLine("Username: ")
		}
		keyPath := sshKeyPath
		if keyPath == "" {
			home, _ := os.UserHomeDir()
			keyPath = home + "/.ssh/id_ed25519"
		}
		keyData, err := os.ReadFile(keyPath)
		if err != nil {
			fmtErr("read key %s: %v", keyPath, err)
			os.Exit(1)
		}
		priv, err := ssh.ParseRawPrivateKey(keyData)
		if err != nil {
			fmtErr("parse key %s: %v", keyPath, err)
			os.Exit(1)
		}

		sess, err := client.LoadSession()
		if err != nil {
			fmtErr("load session: %v", err)
			os.Exit(1)
		}
		api := client.NewAPI(sess)
		err = api.SSHLogin(server, username, func(challenge []byte) (string, error) {
			sig, err := signChallenge(priv, challenge)
			if err != nil {
				return "", err
			}
			return base64.StdEncoding.EncodeToString(sig), nil
		})
		if err != nil {
			fmtErr("ssh login failed: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Logged in to %s as %s\n", server, color.Highlight(username))
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and revoke the server session",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		api := requireAPI()
		if err := api.Logout(); err != nil {
			fmtErr("logout: %v", err)
			os.Exit(1)
		}
		fmt.Println("Logged out")
	},
}

// signChallenge signs the raw challenge bytes with an ed25519 or RSA key.
func signChallenge(priv any, challenge []byte) ([]byte, error) {
	switch key := priv.(type) {
	case *ed25519.PrivateKey:
		return ed25519.Sign(*key, challenge), nil
	case ed25519.PrivateKey:
		return ed25519.Sign(key, challenge), nil
	case *rsa.PrivateKey:
		digest := sha256.Sum256(challenge)
		return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	}
	return nil, fmt.Errorf("unsupported key type %T", priv)
}

func promptLine(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		fmtErr("read input: %v", err)
		os.Exit(1)
	}
	return strings.TrimSpace(line)
}

func promptPassword(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return promptLine("")
	}
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fmtErr("read password: %v", err)
		os.Exit(1)
	}
	return string(pw)
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "username to log in as")
	sshLoginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "username to log in as")
	sshLoginCmd.Flags().StringVarP(&sshKeyPath, "identity", "i", "", "private key file (default ~/.ssh/id_ed25519)")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(sshLoginCmd)
	rootCmd.AddCommand(logoutCmd)
}
