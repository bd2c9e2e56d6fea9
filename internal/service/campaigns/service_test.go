package campaigns

import (
	"errors"
	"testing"
	"time"

	"github.com/bsocio/campaign-service/internal/model"
)

func TestBuildCampaignDefaults(t *testing.T) {
	c, err := buildCampaign(CreateInput{Subject: "s", Content: "c"})
	if err != nil {
		t.Fatalf("buildCampaign: %v", err)
	}
	if c.Audience != model.AudienceAll {
		t.Errorf("Audience = %s, want all_users", c.Audience)
	}
	if c.SendType != model.SendNow {
		t.Errorf("SendType = %s, want now", c.SendType)
	}
	if c.Status != model.CampaignDraft {
		t.Errorf("Status = %s, want draft", c.Status)
	}
}

func TestBuildCampaignRequiredFields(t *testing.T) {
	cases := []CreateInput{
		{Content: "c"},
		{Subject: "s"},
	}
	for _, in := range cases {
		if _, err := buildCampaign(in); !errors.Is(err, ErrValidation) {
			t.Errorf("input %+v: err = %v, want ErrValidation", in, err)
		}
	}
}

func TestBuildCampaignUnknownAudience(t *testing.T) {
	_, err := buildCampaign(CreateInput{Subject: "s", Content: "c", Audience: "friends"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestBuildCampaignScheduledRequiresFutureTime(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	_, err := buildCampaign(CreateInput{
		Subject: "s", Content: "c",
		SendType:    "scheduled",
		ScheduledAt: &past,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("past scheduled_at: err = %v, want ErrValidation", err)
	}

	_, err = buildCampaign(CreateInput{Subject: "s", Content: "c", SendType: "scheduled"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("missing scheduled_at: err = %v, want ErrValidation", err)
	}

	future := time.Now().Add(time.Hour)
	c, err := buildCampaign(CreateInput{
		Subject: "s", Content: "c",
		SendType:    "scheduled",
		ScheduledAt: &future,
	})
	if err != nil {
		t.Fatalf("buildCampaign: %v", err)
	}
	if c.Status != model.CampaignScheduled {
		t.Errorf("Status = %s, want scheduled", c.Status)
	}
}

func TestBuildCampaignManualEmptyListIsValid(t *testing.T) {
	c, err := buildCampaign(CreateInput{
		Subject: "s", Content: "c",
		Audience: "manual_selection",
	})
	if err != nil {
		t.Fatalf("empty manual list must be a valid draft: %v", err)
	}
	if len(c.TargetUserIDs) != 0 {
		t.Errorf("TargetUserIDs = %v, want empty", c.TargetUserIDs)
	}
}

func TestBuildCampaignDropsFieldsOfOtherAudiences(t *testing.T) {
	verified := true
	c, err := buildCampaign(CreateInput{
		Subject: "s", Content: "c",
		Audience:      "manual_selection",
		TargetUserIDs: []int64{1, 2},
		Filters:       &model.AudienceFilters{IsPhoneVerified: &verified},
	})
	if err != nil {
		t.Fatalf("buildCampaign: %v", err)
	}
	if c.Filters != nil {
		t.Error("manual campaign must not keep segment filters")
	}

	c, err = buildCampaign(CreateInput{
		Subject: "s", Content: "c",
		Audience:      "segmented_users",
		TargetUserIDs: []int64{1, 2},
		Filters:       &model.AudienceFilters{IsPhoneVerified: &verified},
	})
	if err != nil {
		t.Fatalf("buildCampaign: %v", err)
	}
	if len(c.TargetUserIDs) != 0 {
		t.Error("segmented campaign must not keep target ids")
	}
}
