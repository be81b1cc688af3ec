package normalize

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billaudit/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"January 5, 2024", "2024-01-05", true},
		{"Jan 5, 2024", "2024-01-05", true},
		{"01/05/2024", "2024-01-05", true},
		{"2024-01-05", "2024-01-05", true},
		{"  2024-01-05  ", "2024-01-05", true},
		{"5th of January", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Date(strPtr(tt.in))
			if !tt.ok {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
	assert.Nil(t, Date(nil))
}

func TestClock(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2:30 PM", "14:30", true},
		{"2:30PM", "14:30", true},
		{"14:30", "14:30", true},
		{"9:05 am", "09:05", true},
		{"noon", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Clock(strPtr(tt.in))
			if !tt.ok {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestText(t *testing.T) {
	got := Text(strPtr("  Dr.  Jane   SMITH "))
	require.NotNil(t, got)
	assert.Equal(t, "dr. jane smith", *got)

	assert.Nil(t, Text(strPtr("   ")))
	assert.Nil(t, Text(nil))
}

func TestIdentifierPreservesInternalFormat(t *testing.T) {
	got := Identifier(strPtr("  (555) 867-5309  "))
	require.NotNil(t, got)
	assert.Equal(t, "(555) 867-5309", *got)
}

func TestDocTypeCoercion(t *testing.T) {
	f := Facts(models.FactMap{DocumentType: strPtr("Medical_Bill")})
	require.NotNil(t, f.DocumentType)
	assert.Equal(t, "medical_bill", *f.DocumentType)

	f = Facts(models.FactMap{DocumentType: strPtr("carwash_invoice")})
	require.NotNil(t, f.DocumentType)
	assert.Equal(t, "unknown", *f.DocumentType)
}

func TestMoney(t *testing.T) {
	d := decimal.NewFromFloat(12.345)
	got := Money(&d)
	require.NotNil(t, got)
	assert.True(t, got.Equal(decimal.NewFromFloat(12.35)), "got %s", got)

	neg := decimal.NewFromFloat(-3.00)
	assert.Nil(t, Money(&neg))
	assert.Nil(t, Money(nil))
}

func TestFactsIdempotent(t *testing.T) {
	in := models.FactMap{
		PatientName:   strPtr("  John   DOE "),
		DateOfService: strPtr("March 3, 2024"),
		TimeOfService: strPtr("1:15 PM"),
		PhoneNumber:   strPtr(" 555-867-5309 "),
		DocumentType:  strPtr("PHARMACY_RECEIPT"),
	}
	once := Facts(in)
	twice := Facts(once)
	assert.Equal(t, once, twice)
}
