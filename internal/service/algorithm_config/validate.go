// Package algorithm_config internal/service/algorithm_config/validate.go
package algorithm_config

import (
	"PluginLens/internal/core/domain"
	"PluginLens/internal/core/port"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/go-playground/validator/v10"
)

// WeightTolerance 权重之和允许偏离 100 的范围
const WeightTolerance = 1

// newValidator 创建带自定义规则的校验器：
// semver 标签校验平台版本号，结构体级规则校验权重之和与阶梯的单调性。
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// 错误信息中使用 json 字段名
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		tag := fld.Tag.Get("json")
		if tag == "-" || tag == "" {
			return fld.Name
		}
		if idx := strings.Index(tag, ","); idx >= 0 {
			tag = tag[:idx]
		}
		return tag
	})

	_ = v.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
		_, err := semver.NewVersion(strings.TrimSpace(fl.Field().String()))
		return err == nil
	})

	v.RegisterStructValidation(func(sl validator.StructLevel) {
		cfg := sl.Current().Interface().(domain.AlgorithmConfig)
		checkWeights(sl, cfg.UsabilityWeights, "usability_weights", domain.UsabilityComponents())
		checkWeights(sl, cfg.HealthWeights, "health_weights", domain.HealthComponents())
	}, domain.AlgorithmConfig{})

	v.RegisterStructValidation(func(sl validator.StructLevel) {
		th := sl.Current().Interface().(domain.Thresholds)
		for i := 1; i < len(th.RatingCount); i++ {
			if th.RatingCount[i].Min >= th.RatingCount[i-1].Min {
				sl.ReportError(th.RatingCount, "rating_count", "RatingCount", "descending", "")
				break
			}
		}
		for i := 1; i < len(th.Installs); i++ {
			if th.Installs[i].Min >= th.Installs[i-1].Min {
				sl.ReportError(th.Installs, "installs", "Installs", "descending", "")
				break
			}
		}
		for i := 1; i < len(th.RecencyDays); i++ {
			if th.RecencyDays[i].MaxDays <= th.RecencyDays[i-1].MaxDays {
				sl.ReportError(th.RecencyDays, "recency_days", "RecencyDays", "ascending", "")
				break
			}
		}
	}, domain.Thresholds{})

	return v
}

func checkWeights(sl validator.StructLevel, w domain.WeightMap, field string, required []string) {
	for _, name := range required {
		if _, ok := w[name]; !ok {
			sl.ReportError(w, field, field, "missing_component", name)
			return
		}
	}
	if sum := w.Sum(); sum < 100-WeightTolerance || sum > 100+WeightTolerance {
		sl.ReportError(w, field, field, "weight_sum", fmt.Sprintf("%d", sum))
	}
}

// toValidationError 把 validator 的错误转换为统一的 *port.ValidationError
func toValidationError(err error) error {
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return port.NewValidationError("config", err.Error())
	}
	out := &port.ValidationError{}
	for _, fe := range ve {
		out.Add(trimNamespace(fe.Namespace()), describe(fe))
	}
	return out.OrNil()
}

// trimNamespace 去掉最外层的类型名，AlgorithmConfig.health_weights -> health_weights
func trimNamespace(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "weight_sum":
		return fmt.Sprintf("权重之和必须为 100 (±%d)，实际为 %s", WeightTolerance, fe.Param())
	case "missing_component":
		return fmt.Sprintf("缺少分项 '%s' 的权重", fe.Param())
	case "descending":
		return "阶梯的 min 必须严格递减"
	case "ascending":
		return "阶梯的 max_days 必须严格递增"
	case "semver":
		return fmt.Sprintf("'%v' 不是合法的版本号", fe.Value())
	case "oneof":
		return fmt.Sprintf("不支持的取值 '%v'", fe.Value())
	case "required":
		return "不能为空"
	case "min":
		return fmt.Sprintf("至少需要 %s 项", fe.Param())
	case "gte", "gt", "lte":
		return fmt.Sprintf("取值 '%v' 不满足 %s %s", fe.Value(), fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("未通过 '%s' 校验", fe.Tag())
	}
}
