package command

// Spoken phrases. The fixed ones are synthesized once at startup.
const (
	PhraseBoot       = "Air defense system active. Tracking and monitoring protocols engaged. Good evening, Sir."
	PhraseScan       = "Initiating deep structural scan. Analyzing perimeter for hostiles."
	PhraseDanger     = "Hostile intent detected. Sir, I recommend immediate action."
	PhraseNormal     = "Scan complete. No hostile signatures found."
	PhraseSuspicious = "Sir, I have detected a suspicious presence."
	PhraseClear      = "Perimeter is secure. All systems nominal."
	PhraseOff        = "Powering down systems. Goodbye, Sir."
	PhraseReport     = "All air defense sub-systems are operational. Energy at one hundred percent."
	PhraseLockdown   = "Protocol initiated. Full perimeter lockdown in effect."
	PhraseReset      = "Alert cleared. Returning to standard monitoring."
	PhraseGoogle     = "Accessing the global network, Sir."
	PhraseOffline    = "The global network is unreachable, Sir."

	PhraseAuthRequired  = "Restricted command. State your authorization code."
	PhraseAuthConfirmed = "authorization confirmed"
	PhraseAuthFailed    = "authentication failed"

	PhraseArmed    = "Defense batteries armed."
	PhraseDisarmed = "Systems disarmed. Authorization revoked."
	PhraseWeapons  = "Weapons systems acknowledged."
	PhraseReboot   = "Reboot acknowledged."
	PhraseStandby  = "Standing by, Sir."
	PhraseHelp     = "Available commands: status, scan, report, time, google, speed, clear, shutdown. Restricted: lockdown, arm, disarm, weapons, reboot."
)

// Manifest lists every fixed phrase so it can be synthesized ahead of time.
func Manifest() []string {
	return []string{
		PhraseBoot, PhraseScan, PhraseDanger, PhraseNormal, PhraseSuspicious,
		PhraseClear, PhraseOff, PhraseReport, PhraseLockdown, PhraseReset,
		PhraseGoogle, PhraseOffline,
		PhraseAuthRequired, PhraseAuthConfirmed, PhraseAuthFailed,
		PhraseArmed, PhraseDisarmed, PhraseWeapons, PhraseReboot,
		PhraseStandby, PhraseHelp,
	}
}
