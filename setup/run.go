package setup

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/agusx1211/hitlctl/config"
)

// Run walks the operator through every config section and writes the result
// to configPath. Existing values are offered as defaults.
func Run(configPath string, in io.Reader, out io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	p := newPrompter(in, out)
	p.heading("hitlctl Setup")
	p.say("Press Enter to keep the current value.")
	if err := configureRuntime(p, &cfg.Runtime); err != nil {
		return err
	}
	if err := configureAuth(p, &cfg.Runtime.Auth); err != nil {
		return err
	}
	if err := configureTunnel(p, &cfg.Tunnel); err != nil {
		return err
	}
	if err := configureSession(p, &cfg.Session, &cfg.Store); err != nil {
		return err
	}
	if err := configureRelay(p, &cfg.Relay); err != nil {
		return err
	}
	save, err := p.yesNo("Save configuration now", true)
	if err != nil {
		return err
	}
	if !save {
		p.say("Setup cancelled. No files were changed.")
		return nil
	}
	if err := config.Save(configPath, cfg); err != nil {
		return err
	}
	if _, err := config.Load(configPath); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved config to %s\n", configPath)
	return nil
}

func loadConfig(configPath string) (config.Config, error) {
	cfg := config.Default()
	existing, err := config.Load(configPath)
	if err == nil {
		return *existing, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	return cfg, err
}
