package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// SetValue sets a configuration value by its yaml key, for example
// log_level, boot_features or resolver_timeout. Durations use time.ParseDuration
// syntax and lists are comma separated.
func (c *Config) SetValue(key, value string) error {
	field, ok := settingsField(reflect.ValueOf(&c.Settings).Elem(), key)
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	switch {
	case field.Type() == reflect.TypeOf(time.Duration(0)):
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %s", key, value)
		}
		field.SetInt(int64(d))
	case field.Kind() == reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %s", key, value)
		}
		field.SetBool(boolVal)
	case field.Kind() == reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %s", key, value)
		}
		field.SetInt(int64(n))
	case field.Kind() == reflect.Slice:
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		field.SetString(value)
	}
	return nil
}

// GetValue returns a configuration value by its yaml key.
func (c *Config) GetValue(key string) (string, error) {
	field, ok := settingsField(reflect.ValueOf(c.Settings), key)
	if !ok {
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
	return formatValue(field), nil
}

// ToMap returns every setting keyed by its yaml key. This is useful for
// displaying the configuration.
func (c *Config) ToMap() map[string]string {
	result := make(map[string]string)
	settingsValue := reflect.ValueOf(c.Settings)
	settingsType := settingsValue.Type()
	for i := 0; i < settingsValue.NumField(); i++ {
		key := yamlKey(settingsType.Field(i))
		if key == "" {
			continue
		}
		result[key] = formatValue(settingsValue.Field(i))
	}
	return result
}

func settingsField(settings reflect.Value, key string) (reflect.Value, bool) {
	settingsType := settings.Type()
	for i := 0; i < settings.NumField(); i++ {
		if yamlKey(settingsType.Field(i)) == key {
			return settings.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// yamlKey handles yaml tags with options (e.g., "cache_dir,omitempty").
func yamlKey(field reflect.StructField) string {
	tag := field.Tag.Get("yaml")
	if tag == "" || tag == "-" {
		return ""
	}
	return strings.Split(tag, ",")[0]
}

func formatValue(v reflect.Value) string {
	if v.Type() == reflect.TypeOf(time.Duration(0)) {
		return time.Duration(v.Int()).String()
	}
	switch v.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Slice:
		items := make([]string, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			items = append(items, fmt.Sprint(v.Index(i).Interface()))
		}
		return strings.Join(items, ",")
	case reflect.String:
		return v.String()
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}
