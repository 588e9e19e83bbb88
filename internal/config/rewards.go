package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// AchievementEntry is a single milestone in the reward catalog.
type AchievementEntry struct {
	ID            string `mapstructure:"id" json:"id"`
	Title         string `mapstructure:"title" json:"title"`
	Metric        string `mapstructure:"metric" json:"metric"`
	Threshold     int64  `mapstructure:"threshold" json:"threshold"`
	RewardCredits int64  `mapstructure:"rewardCredits" json:"reward_credits"`
}

// Achievement metric names. Counters for generated and cooked recipes come
// from the recipe event log; streak uses the effective streak.
const (
	MetricRecipesGenerated = "recipes_generated"
	MetricRecipesCooked    = "recipes_cooked"
	MetricStreak           = "streak"
)

// PlanGrant maps a billing plan to its per-period credit allotment.
type PlanGrant struct {
	PlanID  string `mapstructure:"planId" json:"plan_id"`
	Credits int64  `mapstructure:"credits" json:"credits"`
}

// RewardConfig bundles the achievement catalog and the plan grant table.
type RewardConfig struct {
	Achievements []AchievementEntry `mapstructure:"achievements"`
	PlanGrants   []PlanGrant        `mapstructure:"planGrants"`
}

func DefaultRewardConfig() RewardConfig {
	return RewardConfig{
		Achievements: []AchievementEntry{
			{ID: "first_recipe", Title: "First Recipe", Metric: MetricRecipesGenerated, Threshold: 1, RewardCredits: 1},
			{ID: "recipe_5", Title: "Getting Warm", Metric: MetricRecipesGenerated, Threshold: 5, RewardCredits: 2},
			{ID: "recipe_15", Title: "Home Chef", Metric: MetricRecipesGenerated, Threshold: 15, RewardCredits: 3},
			{ID: "recipe_30", Title: "Kitchen Regular", Metric: MetricRecipesGenerated, Threshold: 30, RewardCredits: 5},
			{ID: "recipe_100", Title: "Recipe Machine", Metric: MetricRecipesGenerated, Threshold: 100, RewardCredits: 10},
			{ID: "streak_3", Title: "Three In A Row", Metric: MetricStreak, Threshold: 3, RewardCredits: 2},
			{ID: "streak_7", Title: "Full Week", Metric: MetricStreak, Threshold: 7, RewardCredits: 5},
			{ID: "streak_30", Title: "Habit Formed", Metric: MetricStreak, Threshold: 30, RewardCredits: 15},
			{ID: "cooked_1", Title: "First Plate", Metric: MetricRecipesCooked, Threshold: 1, RewardCredits: 1},
			{ID: "cooked_10", Title: "Ten Plates", Metric: MetricRecipesCooked, Threshold: 10, RewardCredits: 3},
			{ID: "cooked_50", Title: "Fifty Plates", Metric: MetricRecipesCooked, Threshold: 50, RewardCredits: 8},
		},
		PlanGrants: []PlanGrant{
			{PlanID: "weekly", Credits: 5},
			{PlanID: "monthly", Credits: 20},
			{PlanID: "yearly", Credits: 240},
		},
	}
}

// RewardConfigHolder serves the active reward catalog to every handler
// instance without a database round trip. Thresholds rarely change, so the
// catalog lives in config with hot reload rather than in a table.
type RewardConfigHolder struct {
	current atomic.Value // holds RewardConfig
}

func NewRewardConfigHolder() (*RewardConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("rewards")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/mealforge/config")
	v.AddConfigPath("/etc/mealforge")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MEALFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultRewardConfig()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		v.SetDefault("rewards.achievements", defaults.Achievements)
		v.SetDefault("rewards.planGrants", defaults.PlanGrants)
	}

	var cfg RewardConfig
	if err := v.UnmarshalKey("rewards", &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Achievements) == 0 {
		cfg.Achievements = defaults.Achievements
	}
	if len(cfg.PlanGrants) == 0 {
		cfg.PlanGrants = defaults.PlanGrants
	}
	if err := validateRewardConfig(cfg); err != nil {
		return nil, err
	}

	holder := &RewardConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated RewardConfig
		if err := v.UnmarshalKey("rewards", &updated); err != nil {
			log.Printf("[reward-config] reload failed: %v", err)
			return
		}
		if err := validateRewardConfig(updated); err != nil {
			log.Printf("[reward-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[reward-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticRewardConfigHolder wraps a fixed catalog without file watching.
func NewStaticRewardConfigHolder(cfg RewardConfig) *RewardConfigHolder {
	holder := &RewardConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *RewardConfigHolder) Get() RewardConfig {
	return h.current.Load().(RewardConfig)
}

// GrantForPlan returns the credit allotment for a plan id.
func (c RewardConfig) GrantForPlan(planID string) (int64, bool) {
	for _, grant := range c.PlanGrants {
		if grant.PlanID == planID {
			return grant.Credits, true
		}
	}
	return 0, false
}

func validateRewardConfig(cfg RewardConfig) error {
	if len(cfg.Achievements) == 0 {
		return errors.New("rewards.achievements cannot be empty")
	}
	seen := make(map[string]struct{}, len(cfg.Achievements))
	for _, entry := range cfg.Achievements {
		if strings.TrimSpace(entry.ID) == "" {
			return errors.New("rewards.achievements entry missing id")
		}
		if _, dup := seen[entry.ID]; dup {
			return errors.New("rewards.achievements duplicate id " + entry.ID)
		}
		seen[entry.ID] = struct{}{}
		switch entry.Metric {
		case MetricRecipesGenerated, MetricRecipesCooked, MetricStreak:
		default:
			return errors.New("rewards.achievements unknown metric " + entry.Metric)
		}
		if entry.Threshold <= 0 || entry.RewardCredits <= 0 {
			return errors.New("rewards.achievements thresholds and rewards must be positive")
		}
	}
	if len(cfg.PlanGrants) == 0 {
		return errors.New("rewards.planGrants cannot be empty")
	}
	return nil
}
