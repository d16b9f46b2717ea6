package config

import "time"

// RedisConfig 结果暂存槽和 asynq 共用同一个 Redis
type RedisConfig struct {
	// Addr 为空时结果槽退回内存实现，worker 不可用
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	ResultTTL time.Duration `yaml:"resultTtl"`
}

func (r *RedisConfig) applyEnv() {
	setString(&r.Addr, "REDIS_ADDR")
	setString(&r.Password, "REDIS_PASSWORD")
	setInt(&r.DB, "REDIS_DB")
	setDuration(&r.ResultTTL, "RESULT_TTL")
}
