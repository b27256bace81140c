package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalSortsMapKeysButPreservesListOrder(t *testing.T) {
	v := NewValue(map[string]interface{}{"b": 1.0, "a": 2.0, "c": []interface{}{3.0, 1.0, 2.0}})
	assert.Equal(t, `{"a":2,"b":1,"c":[3,1,2]}`, string(v.Canonical()))
}

func TestEqualIgnoresMapKeyOrderButNotListOrder(t *testing.T) {
	a := NewValue(map[string]interface{}{"a": 1.0, "b": 2.0})
	b := NewValue(map[string]interface{}{"b": 2.0, "a": 1.0})
	assert.True(t, a.Equal(b))

	c := NewValue([]interface{}{1.0, 2.0})
	d := NewValue([]interface{}{2.0, 1.0})
	assert.False(t, c.Equal(d))
}

func TestEqualDetectsChangedScalar(t *testing.T) {
	assert.False(t, NewValue(30.0).Equal(NewValue(80.0)))
	assert.True(t, NewValue("PLA").Equal(NewValue("PLA")))
}
