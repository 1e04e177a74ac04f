package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID == "" {
		t.Fatal("expected base model ID to be generated")
	}
}

func TestEmbeddedModelsUseBaseBeforeCreate(t *testing.T) {
	cases := []struct {
		name  string
		model func() *BaseModel
	}{
		{"student", func() *BaseModel {
			s := &Student{}
			return &s.BaseModel
		}},
		{"user", func() *BaseModel {
			u := &User{}
			return &u.BaseModel
		}},
		{"user_profile", func() *BaseModel {
			p := &UserProfile{}
			return &p.BaseModel
		}},
		{"session", func() *BaseModel {
			s := &Session{}
			return &s.BaseModel
		}},
		{"audit_log", func() *BaseModel {
			a := &AuditLog{}
			return &a.BaseModel
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := tc.model()
			if err := model.BeforeCreate(nil); err != nil {
				t.Fatalf("before create: %v", err)
			}
			if model.ID == "" {
				t.Fatal("expected ID to be generated")
			}
		})
	}
}

func TestBranchParsingAndDisplay(t *testing.T) {
	b, ok := ParseBranch(" cse ")
	require.True(t, ok)
	require.Equal(t, BranchCSE, b)
	require.Equal(t, "Computer Science & Engineering (CSE)", b.DisplayName())

	_, ok = ParseBranch("MBA")
	require.False(t, ok)
	require.Len(t, Branches(), 9)
}

func TestYearParsing(t *testing.T) {
	y, ok := ParseYear("")
	require.True(t, ok)
	require.Equal(t, DefaultYear, y)

	y, ok = ParseYear("3.0")
	require.True(t, ok)
	require.Equal(t, Year3, y)
	require.Equal(t, "3rd Year", y.DisplayName())

	y, ok = ParseYear("2.00")
	require.True(t, ok)
	require.Equal(t, Year2, y)

	_, ok = ParseYear("5")
	require.False(t, ok)
	_, ok = ParseYear("2.5")
	require.False(t, ok)
}

func TestTrimIntegralFraction(t *testing.T) {
	require.Equal(t, "9999999999", TrimIntegralFraction(" 9999999999.0 "))
	require.Equal(t, "4", TrimIntegralFraction("4.000"))
	require.Equal(t, "+919876543210", TrimIntegralFraction("+919876543210.0"))
	require.Equal(t, "2.5", TrimIntegralFraction("2.5"))
	require.Equal(t, "H1.0", TrimIntegralFraction("H1.0"))
	require.Equal(t, "12.", TrimIntegralFraction("12."))
}

func TestSectionParsing(t *testing.T) {
	s, ok := ParseSection("b")
	require.True(t, ok)
	require.Equal(t, Section("B"), s)

	s, ok = ParseSection("")
	require.True(t, ok)
	require.Empty(t, s)

	_, ok = ParseSection("Z")
	require.False(t, ok)
}

func TestStudentDerivedFields(t *testing.T) {
	student := Student{
		Name:       "Alice",
		RollNumber: "21CS001",
		Branch:     BranchECE,
		Year:       Year2,
	}

	require.False(t, student.HasHall())
	student.ExamHallNumber = StringPtr("  ")
	require.Nil(t, student.ExamHallNumber)
	student.ExamHallNumber = StringPtr("H1")
	require.Equal(t, "H1", student.HallNumber())

	require.Equal(t, "21cs001@mits.ac.in", student.InstitutionalEmail("mits.ac.in"))
	require.Equal(t, "Electronics and Communication Engineering (ECE) - 2nd Year", student.FullClassInfo())
	require.Equal(t, "21CS001 - Alice (ECE 2)", student.String())

	view := student.View("mits.ac.in")
	require.Equal(t, "Electronics and Communication Engineering (ECE)", view.BranchDisplay)
	require.Equal(t, "2nd Year", view.YearDisplay)
	require.Equal(t, "21cs001@mits.ac.in", view.InstitutionalEmail)
	require.Equal(t, student.FullClassInfo(), view.FullClassInfo)

	encoded, err := json.Marshal(view)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(encoded, &fields))
	require.Equal(t, "21CS001", fields["roll_number"])
	require.Equal(t, "2nd Year", fields["year_display"])
	require.Equal(t, "21cs001@mits.ac.in", fields["institutional_email"])
}

func TestOTPBeforeCreateGeneratesHashedCode(t *testing.T) {
	otp := &OTPVerification{UserID: "user-1"}
	require.NoError(t, otp.BeforeCreate(nil))

	require.NotEmpty(t, otp.ID)
	require.Len(t, otp.Code, OTPDigits)
	require.NotEqual(t, otp.Code, otp.CodeHash)
	require.True(t, otp.Matches(otp.Code))
	require.Equal(t, OTPPurposePasswordReset, otp.Purpose)
	require.Equal(t, otp.CreatedAt.Add(OTPLifetime), otp.ExpiresAt)
}

func TestOTPBeforeCreateKeepsExplicitValues(t *testing.T) {
	issued := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	otp := &OTPVerification{
		UserID:    "user-1",
		Purpose:   OTPPurposeEmailVerification,
		Code:      "000123",
		BaseModel: BaseModel{CreatedAt: issued},
	}
	require.NoError(t, otp.BeforeCreate(nil))

	require.Equal(t, "000123", otp.Code)
	require.True(t, otp.Matches("000123"))
	require.Equal(t, issued.Add(10*time.Minute), otp.ExpiresAt)

	require.True(t, otp.IsValid(issued.Add(9*time.Minute)))
	require.False(t, otp.IsValid(issued.Add(10*time.Minute)))

	otp.IsUsed = true
	require.False(t, otp.IsValid(issued))
}

func TestOTPBeforeCreateRequiresUser(t *testing.T) {
	require.Error(t, (&OTPVerification{}).BeforeCreate(nil))
}
