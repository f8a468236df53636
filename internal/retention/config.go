package retention

import "time"

type ErrorHandler func(err error)

type SessionPolicy struct {
	// KeepAll 为会话快照保留时长；<=0 表示永久保留。
	KeepAll time.Duration `mapstructure:"keep_all"`
}

type AuditPolicy struct {
	// KeepAll 为审计记录保留时长；<=0 表示不按时间清理。
	KeepAll time.Duration `mapstructure:"keep_all"`
	// KeepLatest >0 时额外只保留最近 N 条。
	KeepLatest int `mapstructure:"keep_latest"`
}

type Config struct {
	Enabled bool `mapstructure:"enabled"`

	// Interval 为清理周期。
	Interval time.Duration `mapstructure:"interval"`
	// Workers 为并发执行清理任务的 worker 数量。
	Workers int `mapstructure:"workers"`
	// BatchRows 为单次 DELETE 的最大行数，避免长时间持有写锁。
	BatchRows int `mapstructure:"batch_rows"`
	// IdleSleep 为两批删除之间的停顿。
	IdleSleep time.Duration `mapstructure:"idle_sleep"`

	Sessions SessionPolicy `mapstructure:"sessions"`
	Audit    AuditPolicy   `mapstructure:"audit"`

	// OnError 为清理失败回调；默认丢弃。
	OnError ErrorHandler `mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Interval:  time.Hour,
		Workers:   2,
		BatchRows: 500,
		IdleSleep: 50 * time.Millisecond,
		Sessions:  SessionPolicy{KeepAll: 30 * 24 * time.Hour},
		Audit:     AuditPolicy{KeepAll: 7 * 24 * time.Hour},
	}
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.BatchRows <= 0 {
		c.BatchRows = 500
	}
	if c.IdleSleep < 0 {
		c.IdleSleep = 0
	}
	if c.OnError == nil {
		c.OnError = func(error) {}
	}
	return c
}
