package pipeline

import (
	"fmt"

	"goldpipe/pkg/models"
)

// datasets is the fixed registry of gold datasets this pipeline knows how to
// materialize into the warehouse, keyed by dataset name. Conditional
// per-dataset dispatch is a lookup here, not a flag ladder.
var datasets = map[string]models.Dataset{
	"mart_city_month": {
		Name:        "mart_city_month",
		TargetTable: "mart_city_month",
		Columns: []models.Column{
			{Name: "state", Type: "TEXT"},
			{Name: "city", Type: "TEXT"},
			{Name: "review_month", Type: "DATE"},
			{Name: "reviews", Type: "BIGINT"},
			{Name: "active_businesses", Type: "BIGINT"},
			{Name: "active_users", Type: "BIGINT"},
			{Name: "avg_stars", Type: "DOUBLE PRECISION"},
		},
		PrimaryKey:  []string{"state", "city", "review_month"},
		Scope:       models.ScopeKeyRange,
		ScopeColumn: "review_month",
		Snapshot:    "mart_city_month.parquet",
		SourceQuery: "SELECT * FROM read_parquet('{snapshot}') WHERE review_month = CAST(? AS DATE)",
	},

	"mart_photo_counts": {
		Name:        "mart_photo_counts",
		TargetTable: "mart_photo_counts",
		Columns: []models.Column{
			{Name: "state", Type: "TEXT"},
			{Name: "city", Type: "TEXT"},
			{Name: "label", Type: "TEXT"},
			{Name: "photos", Type: "BIGINT"},
		},
		PrimaryKey:  []string{"state", "city", "label"},
		Scope:       models.ScopeFullReplace,
		Snapshot:    "mart_photo_counts.parquet",
		SourceQuery: "SELECT state, city, label, photos FROM read_parquet('{snapshot}')",
		// The snapshot is derived: recompute it from the photo dimension and
		// the silver business table when it does not exist yet.
		Materialize: []string{
			`COPY (
			  SELECT
			    b.state,
			    b.city,
			    COALESCE(f.label, '(unknown)') AS label,
			    COUNT(*)::BIGINT AS photos
			  FROM read_parquet('{gold}/dim_photo_files_with_url.parquet') f
			  JOIN read_parquet('{silver}/business/part.parquet') b USING (business_id)
			  GROUP BY 1,2,3
			  ORDER BY 1,2,3
			) TO '{snapshot}' (FORMAT PARQUET, COMPRESSION 'zstd')`,
		},
		Upstreams: []string{
			"{gold}/dim_photo_files_with_url.parquet",
			"{silver}/business/part.parquet",
		},
	},

	"dim_user": {
		Name:        "dim_user",
		TargetTable: "dim_user",
		Columns: []models.Column{
			{Name: "user_id", Type: "TEXT"},
			{Name: "name", Type: "TEXT"},
			{Name: "review_count", Type: "BIGINT"},
			{Name: "yelping_since", Type: "DATE"},
			{Name: "yelping_year", Type: "INTEGER"},
			{Name: "friends_count", Type: "BIGINT"},
			{Name: "useful", Type: "BIGINT"},
			{Name: "funny", Type: "BIGINT"},
			{Name: "cool", Type: "BIGINT"},
			{Name: "fans", Type: "BIGINT"},
			{Name: "average_stars", Type: "DOUBLE PRECISION"},
		},
		PrimaryKey: []string{"user_id"},
		Scope:      models.ScopeFullReplace,
		Snapshot:   "dim_user.parquet",
		SourceQuery: `SELECT
		  user_id::TEXT,
		  name::TEXT,
		  review_count::BIGINT,
		  CAST(yelping_since AS DATE) AS yelping_since,
		  CAST(yelping_year AS INTEGER) AS yelping_year,
		  friends_count::BIGINT,
		  useful::BIGINT,
		  funny::BIGINT,
		  cool::BIGINT,
		  fans::BIGINT,
		  CAST(average_stars AS DOUBLE) AS average_stars
		FROM read_parquet('{snapshot}')`,
		Indexes:   []string{"yelping_year", "review_count", "average_stars"},
		ReadBatch: 50000,
	},
}

// defaultOrder is the order datasets run in when several are requested.
var defaultOrder = []string{"mart_photo_counts", "dim_user", "mart_city_month"}

// Registry returns the dataset descriptor for a name.
func Registry(name string) (models.Dataset, bool) {
	d, ok := datasets[name]
	return d, ok
}

// DatasetNames returns all registered dataset names in run order.
func DatasetNames() []string {
	return append([]string(nil), defaultOrder...)
}

// SelectDatasets resolves the CLI selection into an ordered list of dataset
// names. With no explicit selection the non-scoped datasets run, plus the
// month-scoped ones when a month is given.
func SelectDatasets(only []string, all bool, month string) ([]string, error) {
	if len(only) > 0 && all {
		return nil, fmt.Errorf("--all and --only are mutually exclusive")
	}

	if len(only) > 0 {
		var names []string
		for _, name := range defaultOrder {
			for _, o := range only {
				if o == name {
					names = append(names, name)
				}
			}
		}
		if len(names) != len(only) {
			for _, o := range only {
				if _, ok := datasets[o]; !ok {
					return nil, fmt.Errorf("unknown dataset %q (known: %v)", o, defaultOrder)
				}
			}
		}
		for _, name := range names {
			if datasets[name].MonthScoped() && month == "" {
				return nil, fmt.Errorf("dataset %q requires --month=YYYY-MM", name)
			}
		}
		return names, nil
	}

	var names []string
	for _, name := range defaultOrder {
		if datasets[name].MonthScoped() {
			if all && month == "" {
				continue
			}
			if month == "" {
				continue
			}
		}
		names = append(names, name)
	}
	return names, nil
}
