package models

type Config struct {
	Warehouse Warehouse `yaml:"warehouse"`
	Gold      Gold      `yaml:"gold"`
	Metabase  Metabase  `yaml:"metabase"`
	Sync      Sync      `yaml:"sync"`
	Export    Export    `yaml:"export"`
}

// Warehouse holds the Postgres connection settings for the gold warehouse.
type Warehouse struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
	UseDocker bool   `yaml:"use_docker"` // prefer pg_dump inside the container
	Container string `yaml:"container"`  // compose service name of the PG container
}

// Gold locates the curated parquet snapshots on disk.
type Gold struct {
	Dir       string `yaml:"dir"`        // gold-layer snapshots
	SilverDir string `yaml:"silver_dir"` // upstream silver-layer snapshots
}

// Metabase holds the BI tool connection and seeding settings.
type Metabase struct {
	BaseURL        string `yaml:"base_url"`
	Email          string `yaml:"email"`
	Password       string `yaml:"password"`
	DatasourceName string `yaml:"datasource_name"`
	SiteName       string `yaml:"site_name"`
	ExportDir      string `yaml:"export_dir"`
	Service        string `yaml:"service"`    // compose service name of Metabase
	PGService      string `yaml:"pg_service"` // name PG is reachable as inside the docker network
	RetryMax       int    `yaml:"retry_max"`  // HTTP retries; 0 keeps the single-attempt policy
}

type Sync struct {
	MaxRowsPerInsert int `yaml:"max_rows_per_insert"`
}

type Export struct {
	OutDir string `yaml:"out_dir"`
}
