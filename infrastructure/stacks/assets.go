package stacks

import (
	"fmt"
	"os"
	"strings"
)

// Assets holds the local files a subsystem embeds into its resources. Loading
// happens once, before any resource is declared, so the factories only see
// plain strings.
type Assets struct {
	SSHPrivateKey string
	BootScript    string
}

// LoadAssets reads the configured files. An empty path means the asset is not
// used; a configured path that cannot be read, or is empty, fails fast.
func LoadAssets(sshKeyPath, bootScriptPath string) (Assets, error) {
	var assets Assets
	var err error

	if assets.SSHPrivateKey, err = loadAsset("SSH private key", sshKeyPath); err != nil {
		return Assets{}, err
	}
	if assets.BootScript, err = loadAsset("boot script", bootScriptPath); err != nil {
		return Assets{}, err
	}
	return assets, nil
}

func loadAsset(kind, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", kind, err)
	}
	if strings.TrimSpace(string(b)) == "" {
		return "", fmt.Errorf("load %s: %s is empty", kind, path)
	}
	return string(b), nil
}
