// Package entitlement содержит чистые правила доступа к анализу: лимиты тарифов,
// остаток проверок и таблицу цен мок-биллинга.
package entitlement

import "math"

// Unlimited значение лимита для тарифов без ограничений.
const Unlimited = -1

// DefaultLimit лимит, применяемый к профилю без явно заданного лимита.
const DefaultLimit = 5

// CanPerformAction сообщает, может ли пользователь выполнить ещё одну проверку.
func CanPerformAction(usageCount, usageLimit int) bool {
	if usageLimit == Unlimited {
		return true
	}
	return usageCount < usageLimit
}

// Remaining возвращает число оставшихся проверок, никогда не меньше нуля.
// Для безлимитных тарифов возвращается math.MaxInt.
func Remaining(usageCount, usageLimit int) int {
	if usageLimit == Unlimited {
		return math.MaxInt
	}
	return max(0, usageLimit-usageCount)
}

// EffectiveLimit подставляет лимит по умолчанию вместо нулевого.
func EffectiveLimit(usageLimit int) int {
	if usageLimit == 0 {
		return DefaultLimit
	}
	return usageLimit
}
