package sqlitefile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriLogic(t *testing.T) {
	assert.Equal(t, False, triNot(True))
	assert.Equal(t, True, triNot(False))
	assert.Equal(t, Unknown, triNot(Unknown))

	assert.Equal(t, False, triAnd(True, False))
	assert.Equal(t, Unknown, triAnd(True, Unknown))
	assert.Equal(t, True, triAnd(True, True))

	assert.Equal(t, True, triOr(False, True))
	assert.Equal(t, Unknown, triOr(False, Unknown))
	assert.Equal(t, False, triOr(False, False))
}

func TestEvaluateCompareWithNullIsUnknown(t *testing.T) {
	row := []Value{NullValue(), IntegerValue(5)}
	e := CompareExpr{Op: OpEQ, Left: ColumnRef{Index: 0}, Right: Literal{Value: IntegerValue(1)}}
	result, err := Evaluate(e, row)
	require.NoError(t, err)
	assert.Equal(t, Unknown, result)
	assert.False(t, result.asBool())
}

func TestEvaluateCompareEquality(t *testing.T) {
	row := []Value{IntegerValue(5)}
	e := CompareExpr{Op: OpEQ, Left: ColumnRef{Index: 0}, Right: Literal{Value: IntegerValue(5)}}
	result, err := Evaluate(e, row)
	require.NoError(t, err)
	assert.Equal(t, True, result)
}

func TestEvaluateBetween(t *testing.T) {
	row := []Value{IntegerValue(5)}
	e := Between{
		Value: ColumnRef{Index: 0},
		Low:   Literal{Value: IntegerValue(1)},
		High:  Literal{Value: IntegerValue(10)},
	}
	result, err := Evaluate(e, row)
	require.NoError(t, err)
	assert.Equal(t, True, result)
}

func TestEvaluateInWithNullTargetIsUnknownWhenNoMatch(t *testing.T) {
	row := []Value{IntegerValue(5)}
	e := In{
		Value: ColumnRef{Index: 0},
		Targets: []Expr{
			Literal{Value: IntegerValue(1)},
			Literal{Value: NullValue()},
		},
	}
	result, err := Evaluate(e, row)
	require.NoError(t, err)
	assert.Equal(t, Unknown, result)
}

func TestEvaluateAndOrNot(t *testing.T) {
	row := []Value{IntegerValue(5), NullValue()}
	cmp := CompareExpr{Op: OpEQ, Left: ColumnRef{Index: 0}, Right: Literal{Value: IntegerValue(5)}}
	nullCmp := CompareExpr{Op: OpEQ, Left: ColumnRef{Index: 1}, Right: Literal{Value: IntegerValue(1)}}

	and, err := Evaluate(And{Left: cmp, Right: nullCmp}, row)
	require.NoError(t, err)
	assert.Equal(t, Unknown, and)

	or, err := Evaluate(Or{Left: cmp, Right: nullCmp}, row)
	require.NoError(t, err)
	assert.Equal(t, True, or)

	not, err := Evaluate(Not{Operand: cmp}, row)
	require.NoError(t, err)
	assert.Equal(t, False, not)
}

func TestEvaluateIsNullIsNotNull(t *testing.T) {
	row := []Value{NullValue(), IntegerValue(1)}
	isNull, err := Evaluate(IsNull{Value: ColumnRef{Index: 0}}, row)
	require.NoError(t, err)
	assert.Equal(t, True, isNull)

	isNotNull, err := Evaluate(IsNotNull{Value: ColumnRef{Index: 1}}, row)
	require.NoError(t, err)
	assert.Equal(t, True, isNotNull)
}

func TestLikeMatch(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		s       string
		want    bool
	}{
		{"exact match", "abc", "abc", true},
		{"percent matches empty", "a%c", "ac", true},
		{"percent matches run", "a%c", "abbbc", true},
		{"underscore matches one char", "a_c", "abc", true},
		{"underscore rejects empty", "a_c", "ac", false},
		{"case insensitive", "ABC", "abc", true},
		{"no match", "abc", "abd", false},
		{"leading and trailing percent", "%bc%", "xxbcyy", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, likeMatch(tt.pattern, tt.s))
		})
	}
}

func TestEvaluateLikeWithNullIsUnknown(t *testing.T) {
	row := []Value{NullValue()}
	e := Like{Value: ColumnRef{Index: 0}, Pattern: Literal{Value: TextValue("a%")}}
	result, err := Evaluate(e, row)
	require.NoError(t, err)
	assert.Equal(t, Unknown, result)
}
