package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pimstack/aipopulate/internal/settings"
)

var settingsFile string

// settingsSeed is the YAML shape of a client settings file.
type settingsSeed struct {
	ClientID string `yaml:"client_id"`
	Config   struct {
		Provider               string   `yaml:"provider"`
		Model                  string   `yaml:"model"`
		Temperature            *float64 `yaml:"temperature"`
		MaxOutputTokens        int      `yaml:"max_output_tokens"`
		WebSearchEnabled       bool     `yaml:"web_search_enabled"`
		OptionsMappingModel    string   `yaml:"options_mapping_model"`
		MaxOptionsPerAttribute int      `yaml:"max_options_per_attribute"`
		OptionExamplesCount    int      `yaml:"option_examples_count"`
		RandomOptionSampling   bool     `yaml:"random_option_sampling"`
		AppendSourcesToReason  *bool    `yaml:"append_sources_to_reason"`
	} `yaml:"config"`
	Flows map[string]struct {
		SetupPrompt               string `yaml:"setup_prompt"`
		Prompt                    string `yaml:"prompt"`
		OptionsMappingSetupPrompt string `yaml:"options_mapping_setup_prompt"`
		OptionsMappingPrompt      string `yaml:"options_mapping_prompt"`
	} `yaml:"flows"`
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Write client settings from a YAML file to the settings store",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(settingsFile)
		if err != nil {
			return eris.Wrap(err, "read settings file")
		}
		var seed settingsSeed
		if err := yaml.Unmarshal(data, &seed); err != nil {
			return eris.Wrap(err, "parse settings file")
		}
		if seed.ClientID == "" {
			return eris.New("settings file missing client_id")
		}
		if len(seed.Flows) == 0 {
			return eris.New("settings file has no flows")
		}

		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		cs := &settings.ClientSettings{
			ClientID: seed.ClientID,
			Config: settings.GenerationConfig{
				Provider:               seed.Config.Provider,
				Model:                  seed.Config.Model,
				Temperature:            seed.Config.Temperature,
				MaxOutputTokens:        seed.Config.MaxOutputTokens,
				WebSearchEnabled:       seed.Config.WebSearchEnabled,
				OptionsMappingModel:    seed.Config.OptionsMappingModel,
				MaxOptionsPerAttribute: seed.Config.MaxOptionsPerAttribute,
				OptionExamplesCount:    seed.Config.OptionExamplesCount,
				RandomOptionSampling:   seed.Config.RandomOptionSampling,
				AppendSourcesToReason:  seed.Config.AppendSourcesToReason,
			},
			Flows: map[string]*settings.FlowSettings{},
		}
		for name, flow := range seed.Flows {
			cs.Flows[name] = &settings.FlowSettings{
				SetupPrompt:               flow.SetupPrompt,
				Prompt:                    flow.Prompt,
				OptionsMappingSetupPrompt: flow.OptionsMappingSetupPrompt,
				OptionsMappingPrompt:      flow.OptionsMappingPrompt,
			}
		}

		if err := env.Settings.Upsert(cmd.Context(), cs); err != nil {
			return err
		}
		env.Cache.Invalidate(seed.ClientID)

		fmt.Printf("settings updated for client %s (%d flows)\n", seed.ClientID, len(cs.Flows))
		return nil
	},
}

func init() {
	settingsCmd.Flags().StringVar(&settingsFile, "file", "", "path to the YAML settings file (required)")
	_ = settingsCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(settingsCmd)
}
