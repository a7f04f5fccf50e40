// Package setup gets a local SSH key onto a GPU host so dgxops can connect
// without a password.
//
// FindLocalKeys searches the standard locations (~/.ssh/id_ed25519,
// id_rsa, id_ecdsa) and PreferredKey picks ed25519 over ECDSA over RSA.
// GenerateKey writes a new pair in-process when none exists.
//
// InstallKey deploys the public half with ssh-copy-id, which prompts for
// the host's password once. When ssh-copy-id isn't available,
// ManualInstructions prints the equivalent shell one-liner.
//
// Keys are generated with an empty passphrase so the daemon can load them
// unattended; add one with ssh-keygen -p and load it into ssh-agent if
// that matters for your site. Private key contents are never read.
package setup
