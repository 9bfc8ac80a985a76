// Package setup holds the terminal UX: the configuration wizard, trade
// confirmations and lipgloss renderings of wallets, quotes and receipts.
package setup

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/boomkit/config"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	warning   = lipgloss.AdaptiveColor{Light: "#C2410C", Dark: "#FDBA74"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// RunWizard asks for the connection settings and writes them as YAML to filename.
func RunWizard(filename string) error {
	var (
		apiURL          = "https://api.example.com"
		streamURL       string
		currency        = config.DefaultCurrency
		pollIntervalStr = config.DefaultPollInterval.String()
		confirm         bool
	)

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("BOOMKIT SETUP"))
	fmt.Println(stepStyle.Render("STEP 1: BACKEND"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("REST base url").
				Value(&apiURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Push stream url").
				Description("ws:// or wss://, leave empty to rely on polling").
				Value(&streamURL).
				Validate(func(s string) error {
					if s == "" {
						return nil
					}
					return validateURL(s)
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Println(stepStyle.Render("STEP 2: DISPLAY & POLLING"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Account currency").
				Value(&currency),
			huh.NewInput().
				Title("Wallet poll interval").
				Value(&pollIntervalStr).
				Validate(validateInterval),
		),
	).Run()
	if err != nil {
		return err
	}

	summary := fmt.Sprintf("API: %s\nStream: %s\nCurrency: %s\nPoll: %s\n", apiURL, streamURL, currency, pollIntervalStr)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return errors.New("setup cancelled by user")
	}

	pollInterval, _ := time.ParseDuration(pollIntervalStr)
	data, err := yaml.Marshal(config.ConfigTmp{
		APIURL:       apiURL,
		StreamURL:    streamURL,
		Currency:     currency,
		PollInterval: pollInterval,
	})
	if err != nil {
		return errors.Wrap(err, "generate yaml")
	}
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return errors.Wrap(err, "save config file")
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", filename)))
	return nil
}

// Confirm asks a yes/no question.
func Confirm(title, body string) (bool, error) {
	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(body).
				Affirmative("Confirm").
				Negative("Cancel").
				Value(&ok),
		),
	).Run()
	return ok, err
}

func validateURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("must be an absolute url")
	}
	return nil
}

func validateInterval(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return errors.New("must be a duration such as 30s")
	}
	if d < time.Second {
		return errors.New("must be at least 1s")
	}
	return nil
}
