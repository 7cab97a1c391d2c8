package beanstalk

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

const (
	// DefaultPriority and DefaultTTR apply when a submission leaves them unset.
	DefaultPriority uint32 = 512
	DefaultTTR             = 120 * time.Second
)

type item struct {
	conn conn
	id   uint64
	body []byte
}

func (i *item) ID() string   { return strconv.FormatUint(i.id, 10) }
func (i *item) Body() []byte { return i.body }

func (i *item) Delete(ctx context.Context) error {
	if err := i.conn.Delete(i.id); err != nil {
		return fmt.Errorf("beanstalk delete %d: %w", i.id, err)
	}
	return nil
}

func (i *item) Decay(ctx context.Context, delay *time.Duration) error {
	stats, err := i.conn.StatsJob(i.id)
	if err != nil {
		return fmt.Errorf("beanstalk stats-job %d: %w", i.id, err)
	}
	pri, err := statUint(stats, "pri")
	if err != nil {
		return err
	}
	d, err := decayDelay(stats, delay)
	if err != nil {
		return err
	}
	if err := i.conn.Release(i.id, uint32(pri), d); err != nil {
		return fmt.Errorf("beanstalk release %d: %w", i.id, err)
	}
	return nil
}

func (i *item) Bury(ctx context.Context) error {
	stats, err := i.conn.StatsJob(i.id)
	if err != nil {
		return fmt.Errorf("beanstalk stats-job %d: %w", i.id, err)
	}
	pri, err := statUint(stats, "pri")
	if err != nil {
		return err
	}
	if err := i.conn.Bury(i.id, uint32(pri)); err != nil {
		return fmt.Errorf("beanstalk bury %d: %w", i.id, err)
	}
	return nil
}

func (i *item) Age(ctx context.Context) (time.Duration, error) {
	stats, err := i.conn.StatsJob(i.id)
	if err != nil {
		return 0, fmt.Errorf("beanstalk stats-job %d: %w", i.id, err)
	}
	age, err := statUint(stats, "age")
	if err != nil {
		return 0, err
	}
	return time.Duration(age) * time.Second, nil
}

func (i *item) Reservations(ctx context.Context) (int, error) {
	stats, err := i.conn.StatsJob(i.id)
	if err != nil {
		return 0, fmt.Errorf("beanstalk stats-job %d: %w", i.id, err)
	}
	n, err := statUint(stats, "reserves")
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// decayDelay returns the explicit delay, or else doubles the job's
// current delay with a one second floor.
func decayDelay(stats map[string]string, explicit *time.Duration) (time.Duration, error) {
	if explicit != nil {
		return *explicit, nil
	}
	current, err := statUint(stats, "delay")
	if err != nil {
		return 0, err
	}
	if current < 1 {
		current = 1
	}
	return time.Duration(current*2) * time.Second, nil
}

func statUint(stats map[string]string, key string) (uint64, error) {
	v, ok := stats[key]
	if !ok {
		return 0, fmt.Errorf("beanstalk stats-job: missing %q", key)
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("beanstalk stats-job: %s=%q: %w", key, v, err)
	}
	return n, nil
}
