package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# alphahunter configuration

[strategy]
# Percent change band of the scan session
change_min = 0.3
change_max = 4.0
# Turnover band, percent
turnover_min = 5.0
turnover_max = 20.0
volume_ratio_min = 0.8
# Session range over previous close (fraction)
amplitude_max = 0.05
# Live moving average and maximum absolute bias (fraction)
ma_period = 5
bias_max = 0.02
# Previous session gain band, percent
prev_change_min = 0.0
prev_change_max = 5.0
require_bullish = true
blacklist = []

[momentum]
long_window = 120
short_window = 20
history_depth = 5
breadth_window = 20
rps_min = 40.0

[regime]
index_symbol = "000001"
index_drop_threshold = -2.0
sleep_below_ma20 = false
uptrend_discount = 1.0
choppy_discount = 0.9
rebound_discount = 0.8
downtrend_discount = 0.7
crash_discount = 0.5
# Percent of the universe at a 20-day high
cold_breadth = 8.0
hot_breadth = 30.0
cold_rps_min = 70.0
cold_position_multiplier = 0.5
hot_turnover_spike_ratio = 3.0

# Must sum to 1.0
[weights]
momentum = 0.30
money_flow = 0.25
sector = 0.20
valuation = 0.15
volume = 0.10

[scoring]
min_total_score = 60.0
grade_a = 80.0
grade_b = 70.0
grade_c = 60.0
trap_rps = 80.0
# Main-force net inflow, 10k CNY
inflow_threshold = 1000.0
outflow_threshold = -1000.0

[sector]
enabled = true
top_pct = 0.33

[confirmation]
enabled = true
top_n = 10
exclude_ratio = -0.5

[kelly]
base_amount = 50000.0
safety_factor = 0.5
min_multiple = 0.2
max_multiple = 2.0
default_multiple = 0.5
min_trades = 5
lookback_days = 30

[risk]
atr_period = 14
ma_period = 5
core_grade = "A"
default_grade = "B"

[risk.grades.A]
atr_multiplier = 2.0
fixed_stop_pct = -5.0
max_profit_pct = 12.0
drawdown_pct = 5.0
take_profit_pct = 15.0
loss_attention_pct = -6.0

[risk.grades.B]
atr_multiplier = 1.5
fixed_stop_pct = -3.0
max_profit_pct = 10.0
drawdown_pct = 3.0
take_profit_pct = 10.0
loss_attention_pct = -5.0

[risk.grades.C]
atr_multiplier = 1.2
fixed_stop_pct = -2.5
max_profit_pct = 8.0
drawdown_pct = 2.5
take_profit_pct = 8.0
loss_attention_pct = -4.0

[risk.grades.D]
atr_multiplier = 1.0
fixed_stop_pct = -2.0
max_profit_pct = 6.0
drawdown_pct = 2.0
take_profit_pct = 6.0
loss_attention_pct = -3.0

[monitor]
alert_cooldown = "1h"
auto_open = false

[backtest]
initial_capital = 1000000.0
trade_amount = 50000.0
max_positions = 5
# Trading days before a time exit at the open; 0 waits for an exit rule
max_hold_days = 1
# Percent of notional
commission_pct = 0.03
stamp_duty_pct = 0.1
sample_size = 500

[tracking]
enabled = true
# Trading days after the scan at which returns are recorded
horizons = [1, 3, 5]
retention_days = 30

[data]
max_workers = 30
timeout = "10s"
max_retries = 3
retry_delay = "500ms"
history_days = 150
# Extra exchange closures on top of the built-in SSE/SZSE calendar
holidays = []

[cache]
# "memory" or "redis"
backend = "memory"
redis_addr = "localhost:6379"
ttl = "24h"

[store]
# "sqlite", "postgres" or "memory"
driver = "sqlite"
dsn = ""

[schedule]
rank_update = "0 0 17 * * MON-FRI"
scans = ["0 35 14 * * MON-FRI", "0 50 14 * * MON-FRI"]
premarket = "0 26 9 * * MON-FRI"
monitor = "0 */5 9-14 * * MON-FRI"
daily_check = "0 10 15 * * MON-FRI"

[notifications]
enabled = true

[notifications.webhook]
enabled = false
url = ""

[metrics]
enabled = true
addr = ":9464"

[logging]
level = "info"
console = true
file = true
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}

// WriteTemplate writes the config template into configDir unless a config
// already exists there.
func WriteTemplate(configDir string) (string, error) {
	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("config already exists at %s", path)
	}
	return path, createTemplateConfig(configDir)
}
