package events

import (
	"bytes"
	"strings"
	"testing"
)

func TestItemUnlockedAttributes(t *testing.T) {
	var holder [20]byte
	copy(holder[:], bytes.Repeat([]byte{0x01}, 20))
	var item [32]byte
	item[31] = 0xAB
	evt := ItemUnlocked{Holder: holder, Item: item, LockedAt: 10, UnlockedAt: 3610, PointsEarned: 10, Points: 30, ActiveLocks: 1}.Event()
	if evt.Type != TypeItemUnlocked {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	if !strings.HasPrefix(evt.Attributes["holder"], "stk1") {
		t.Fatalf("holder not bech32: %s", evt.Attributes["holder"])
	}
	if !strings.HasSuffix(evt.Attributes["item"], "ab") {
		t.Fatalf("unexpected item %s", evt.Attributes["item"])
	}
	if evt.Attributes["pointsEarned"] != "10" || evt.Attributes["points"] != "30" {
		t.Fatalf("unexpected points attrs: %v", evt.Attributes)
	}
}

func TestFanoutAndRecorder(t *testing.T) {
	first := &Recorder{}
	second := &Recorder{}
	fan := Fanout{first, nil, second}
	fan.Emit(HolderRegistered{})
	fan.Emit(RewardsClaimed{Payout: 5})
	for _, rec := range []*Recorder{first, second} {
		types := rec.Types()
		if len(types) != 2 || types[0] != TypeHolderRegistered || types[1] != TypeRewardsClaimed {
			t.Fatalf("unexpected recorded types %v", types)
		}
	}
	rendered := Render(first.Events()[1])
	if rendered == nil || rendered.Attributes["payout"] != "5" {
		t.Fatalf("unexpected render %+v", rendered)
	}
	if _, ok := rendered.Attributes["claimedAt"]; ok {
		t.Fatalf("zero claimedAt should be omitted")
	}
}
