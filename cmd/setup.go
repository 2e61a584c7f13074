package cmd

import (
	"fmt"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"goldpipe/internal/config"
	"goldpipe/internal/secrets"
	"goldpipe/internal/ui"
	"goldpipe/pkg/models"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive configuration setup",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	ui.ShowHeader("Goldpipe setup")

	if config.Exists() {
		overwrite, err := ui.AskConfirm("Configuration already exists. Overwrite it?", false)
		if err != nil {
			return err
		}
		if !overwrite {
			fmt.Println("Setup cancelled.")
			return nil
		}
	}

	cfg := &models.Config{}

	fmt.Println("\nWarehouse (Postgres)")
	fmt.Println("--------------------")
	warehouseQs := []*survey.Question{
		{
			Name:   "host",
			Prompt: &survey.Input{Message: "Host:", Default: "localhost"},
		},
		{
			Name:   "port",
			Prompt: &survey.Input{Message: "Port:", Default: "5432"},
		},
		{
			Name:     "user",
			Prompt:   &survey.Input{Message: "User:", Default: "reader"},
			Validate: survey.Required,
		},
		{
			Name:     "password",
			Prompt:   &survey.Password{Message: "Password:"},
			Validate: survey.Required,
		},
		{
			Name:   "database",
			Prompt: &survey.Input{Message: "Database:", Default: "yelp_gold"},
		},
		{
			Name:   "schema",
			Prompt: &survey.Input{Message: "Schema:", Default: "yelp_gold"},
		},
	}
	warehouseAnswers := struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		Schema   string
	}{}
	if err := survey.Ask(warehouseQs, &warehouseAnswers); err != nil {
		return err
	}
	port, err := strconv.Atoi(warehouseAnswers.Port)
	if err != nil {
		return fmt.Errorf("invalid port %q", warehouseAnswers.Port)
	}

	fmt.Println("\nGold store")
	fmt.Println("----------")
	goldDir, err := ui.Input("Gold snapshot directory:", "data/gold", "directory holding the gold parquet files")
	if err != nil {
		return err
	}
	silverDir, err := ui.Input("Silver snapshot directory:", "data/silver", "directory holding the upstream silver parquet files")
	if err != nil {
		return err
	}

	fmt.Println("\nMetabase")
	fmt.Println("--------")
	mbQs := []*survey.Question{
		{
			Name:   "baseurl",
			Prompt: &survey.Input{Message: "Base URL:", Default: "http://localhost:3000"},
		},
		{
			Name:   "email",
			Prompt: &survey.Input{Message: "Admin email:", Default: "admin@yelp.local"},
		},
		{
			Name:     "password",
			Prompt:   &survey.Password{Message: "Admin password:"},
			Validate: survey.Required,
		},
		{
			Name:   "sitename",
			Prompt: &survey.Input{Message: "Site name:", Default: "Yelp BI"},
		},
	}
	mbAnswers := struct {
		BaseURL  string
		Email    string
		Password string
		SiteName string
	}{}
	if err := survey.Ask(mbQs, &mbAnswers); err != nil {
		return err
	}

	cfg.Warehouse = models.Warehouse{
		Host:      warehouseAnswers.Host,
		Port:      port,
		User:      warehouseAnswers.User,
		Database:  warehouseAnswers.Database,
		Schema:    warehouseAnswers.Schema,
		Container: "yelp_pg",
	}
	cfg.Gold = models.Gold{Dir: goldDir, SilverDir: silverDir}
	cfg.Metabase = models.Metabase{
		BaseURL:        mbAnswers.BaseURL,
		Email:          mbAnswers.Email,
		DatasourceName: warehouseAnswers.Schema,
		SiteName:       mbAnswers.SiteName,
		ExportDir:      "metabase_export",
		Service:        "metabase",
		PGService:      "postgres",
	}
	cfg.Sync = models.Sync{MaxRowsPerInsert: 10000}
	cfg.Export = models.Export{OutDir: "exports"}

	// Passwords go to the secret store, never to the config file.
	store := secrets.NewStore(config.GetConfigPath())
	if err := store.Set("warehouse_password", warehouseAnswers.Password); err != nil {
		ui.ShowWarning(fmt.Sprintf("could not store warehouse password securely: %v", err))
		cfg.Warehouse.Password = warehouseAnswers.Password
	}
	if err := store.Set("metabase_password", mbAnswers.Password); err != nil {
		ui.ShowWarning(fmt.Sprintf("could not store Metabase password securely: %v", err))
		cfg.Metabase.Password = mbAnswers.Password
	}

	if err := config.Save(cfg); err != nil {
		return err
	}

	ui.ShowSuccess("configuration saved to " + config.GetConfigFile())
	return nil
}
