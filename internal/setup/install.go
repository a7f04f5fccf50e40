package setup

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/pkg/sshutil"
)

// InstallKey copies keyPath's public half to target's authorized_keys using
// ssh-copy-id, which prompts for the host's password. It returns the path
// of the public key it installed.
func InstallKey(ctx context.Context, target sshutil.Target, keyPath string) (string, error) {
	if keyPath == "" {
		key := PreferredKey()
		if key == nil {
			return "", errors.New(errors.ErrSSH,
				"No SSH keys on this machine",
				"Generate one first: ssh-keygen -t ed25519")
		}
		keyPath = key.Path
	}
	pub := PublicKeyPath(keyPath)

	bin, err := exec.LookPath("ssh-copy-id")
	if err != nil {
		return pub, errors.New(errors.ErrSSH,
			"Can't find ssh-copy-id",
			"Install OpenSSH, or copy the key manually:\n"+ManualInstructions(target, pub))
	}

	cmd := exec.CommandContext(ctx, bin, copyIDArgs(target, pub)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return pub, classifyCopyError(err, target, pub, strings.TrimSpace(string(output)))
	}
	return pub, nil
}

func copyIDArgs(target sshutil.Target, pub string) []string {
	args := []string{"-i", pub}
	if target.Port != 0 && target.Port != 22 {
		args = append(args, "-p", strconv.Itoa(target.Port))
	}
	dest := target.Host
	if target.User != "" {
		dest = target.User + "@" + dest
	}
	return append(args, dest)
}

func classifyCopyError(err error, target sshutil.Target, pub, output string) error {
	host := target.Host
	switch {
	case strings.Contains(output, "Permission denied"):
		return errors.New(errors.ErrSSH,
			fmt.Sprintf("Permission denied on %s", host),
			"Double-check the password or credentials and try again.")
	case strings.Contains(output, "Connection refused"):
		return errors.New(errors.ErrSSH,
			fmt.Sprintf("Connection refused to %s", host),
			"Make sure SSH is running on the remote machine.")
	case strings.Contains(output, "Could not resolve hostname"):
		return errors.New(errors.ErrSSH,
			fmt.Sprintf("Can't resolve hostname %s", host),
			"Check the hostname and your network connection.")
	}
	return errors.WrapWithCode(err, errors.ErrSSH,
		fmt.Sprintf("Couldn't copy SSH key to %s: %s", target, output),
		"Try manually: ssh-copy-id "+strings.Join(copyIDArgs(target, pub), " "))
}

// ManualInstructions explains how to install pubPath on target by hand.
func ManualInstructions(target sshutil.Target, pubPath string) string {
	dest := target.Host
	if target.User != "" {
		dest = target.User + "@" + dest
	}
	port := ""
	if target.Port != 0 && target.Port != 22 {
		port = fmt.Sprintf("-p %d ", target.Port)
	}

	pubKey, err := ReadPublicKey(pubPath)
	if err != nil {
		return fmt.Sprintf(`  cat %s | ssh %s%s "mkdir -p ~/.ssh && chmod 700 ~/.ssh && cat >> ~/.ssh/authorized_keys && chmod 600 ~/.ssh/authorized_keys"
`, pubPath, port, dest)
	}
	return fmt.Sprintf(`  ssh %s%s "mkdir -p ~/.ssh && chmod 700 ~/.ssh && echo '%s' >> ~/.ssh/authorized_keys && chmod 600 ~/.ssh/authorized_keys"
`, port, dest, pubKey)
}
