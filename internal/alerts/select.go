package alerts

// Notification is the single notification chosen for a refresh cycle.
type Notification struct {
	Alert    Alert
	Priority Priority
}

// Selection is the result of comparing a fetch against the previous set.
type Selection struct {
	NewAlerts    []Alert
	Notification *Notification
}

// Select returns the alerts in current whose IDs are absent from previous,
// in current's order, and picks the first of them for notification.
// The first new alert wins even when a later one has a higher priority.
// Neither argument is modified.
func Select(previous map[string]Alert, current []Alert) Selection {
	var sel Selection
	for _, a := range current {
		if _, seen := previous[a.ID]; seen {
			continue
		}
		sel.NewAlerts = append(sel.NewAlerts, a)
	}
	if len(sel.NewAlerts) > 0 {
		first := sel.NewAlerts[0]
		sel.Notification = &Notification{Alert: first, Priority: first.Priority}
	}
	return sel
}

// IndexByID builds the keyed set used as the previous side of Select.
func IndexByID(alerts []Alert) map[string]Alert {
	set := make(map[string]Alert, len(alerts))
	for _, a := range alerts {
		set[a.ID] = a
	}
	return set
}
