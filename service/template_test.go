package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBand_Contains(t *testing.T) {
	b := Band{Level: SeverityWarning, Min: f(10), Max: f(20)}

	assert.True(t, b.Contains(10)) // 下界闭
	assert.True(t, b.Contains(15))
	assert.False(t, b.Contains(20)) // 上界开
	assert.False(t, b.Contains(9.99))

	open := Band{Level: SeverityDanger, Min: f(20)}
	assert.True(t, open.Contains(20))
	assert.True(t, open.Contains(1000))
	assert.False(t, open.Contains(19.99))
}

// 每个内置标准的区间必须对值域构成完整且不重叠的划分：
// 任意取值恰好命中一个区间
func TestBuiltinTemplates_BandPartition(t *testing.T) {
	set := BuiltinTemplates()
	samples := []float64{-50, 0, 0.5, 1, 2.99, 3, 5, 8, 10, 15, 19.99, 20, 25, 30,
		44.99, 45, 55, 69.99, 70, 80, 85, 90, 110, 119.99, 120, 145, 150, 160, 170, 175, 190, 250}

	for _, pattern := range set.Patterns() {
		tpl := set.Get(pattern)
		require.NotNil(t, tpl)
		for _, c := range tpl.Criteria {
			for _, v := range samples {
				hits := 0
				for _, b := range c.Bands {
					if b.Contains(v) {
						hits++
					}
				}
				assert.Equal(t, 1, hits, "%s/%s 值 %.2f 命中 %d 个区间", pattern, c.Name, v, hits)
			}
		}
	}
}

func TestBuiltinTemplates_Patterns(t *testing.T) {
	set := BuiltinTemplates()

	assert.Equal(t, []string{"bench_press", "deadlift", "overhead_press", "squat"}, set.Patterns())
	assert.True(t, set.Has("squat"))
	assert.False(t, set.Has("snatch"))
	assert.Nil(t, set.Get("snatch"))
}

func TestBuiltinTemplates_SafetyCritical(t *testing.T) {
	set := BuiltinTemplates()

	squat := set.Get("squat")
	require.NotNil(t, squat)
	valgus := squat.CriterionByMetric("knee_medial_displacement_cm")
	require.NotNil(t, valgus)
	assert.True(t, valgus.SafetyCritical)
	lumbar := squat.CriterionByMetric("lumbar_flexion_change_degrees")
	require.NotNil(t, lumbar)
	assert.True(t, lumbar.SafetyCritical)

	// 深度是幅度依赖标准，装备受限时降级
	depth := squat.CriterionByMetric("hip_angle_at_bottom")
	require.NotNil(t, depth)
	assert.True(t, depth.ROMDependent)
	assert.False(t, depth.SafetyCritical)
}

func TestEquipmentConstraint(t *testing.T) {
	assert.True(t, ValidConstraint(""))
	assert.True(t, ValidConstraint("none"))
	assert.True(t, ValidConstraint("safety_bars"))
	assert.True(t, ValidConstraint("rehab"))
	assert.False(t, ValidConstraint("no_shoes"))

	assert.False(t, ConstraintNone.LimitsROM())
	assert.True(t, ConstraintSafetyBars.LimitsROM())
	assert.True(t, ConstraintMachineGuided.LimitsROM())
	assert.True(t, ConstraintPainLimited.LimitsROM())
}

func TestAllSeverities_Order(t *testing.T) {
	order := AllSeverities()
	require.Len(t, order, 5)
	assert.Equal(t, SeverityDanger, order[0])
	assert.Equal(t, SeverityExcellent, order[4])
}
