// Package slackmsg renders lunchbot data as Slack Block Kit messages.
// Everything here is pure formatting.
package slackmsg

import (
	"fmt"
	"strconv"
	"strings"

	"lunchbot/models"
	"lunchbot/statemachine"

	"github.com/slack-go/slack"
)

var (
	TimeOptions  = []int{10, 20, 30, 45, 60, 90}
	PriceOptions = []int{500, 700, 1000, 1500, 2000, 3000}
)

// Slack rejects actions blocks with more than 25 elements.
const maxActionsPerBlock = 25

// MaxRestaurantsShown caps the restaurants rendered in one message. Each
// takes two blocks and Slack rejects messages over 50 blocks.
const MaxRestaurantsShown = 20

// truncated splits restaurants into the shown prefix and a footer block
// counting the rest, nil when everything fits.
func truncated(restaurants []models.Restaurant) ([]models.Restaurant, slack.Block) {
	if len(restaurants) <= MaxRestaurantsShown {
		return restaurants, nil
	}
	rest := len(restaurants) - MaxRestaurantsShown
	return restaurants[:MaxRestaurantsShown], slack.NewContextBlock("", mrkdwn(fmt.Sprintf("…and %d more", rest)))
}

func mrkdwn(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

func plain(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, text, true, false)
}

func section(text string) *slack.SectionBlock {
	return slack.NewSectionBlock(mrkdwn(text), nil, nil)
}

func button(trigger statemachine.Trigger, arg, value, label string) *slack.ButtonBlockElement {
	return slack.NewButtonBlockElement(statemachine.ActionID(trigger, arg), value, plain(label))
}

// actionRows splits buttons over as many actions blocks as Slack needs.
func actionRows(blockID string, buttons []*slack.ButtonBlockElement) []slack.Block {
	var blocks []slack.Block
	for start := 0; start < len(buttons); start += maxActionsPerBlock {
		end := min(start+maxActionsPerBlock, len(buttons))
		elements := make([]slack.BlockElement, 0, end-start)
		for _, b := range buttons[start:end] {
			elements = append(elements, b)
		}
		blocks = append(blocks, slack.NewActionBlock(fmt.Sprintf("%s-%d", blockID, start/maxActionsPerBlock), elements...))
	}
	return blocks
}

// Ephemeral is a plain reply only the invoking user sees.
func Ephemeral(text string) slack.Msg {
	return slack.Msg{
		ResponseType: slack.ResponseTypeEphemeral,
		Text:         text,
		Blocks:       slack.Blocks{BlockSet: []slack.Block{section(text)}},
	}
}

// Replace is a reply that overwrites the message a button was clicked on.
func Replace(text string, blocks ...slack.Block) slack.Msg {
	if len(blocks) == 0 {
		blocks = []slack.Block{section(text)}
	}
	return slack.Msg{
		ResponseType:    slack.ResponseTypeEphemeral,
		ReplaceOriginal: true,
		Text:            text,
		Blocks:          slack.Blocks{BlockSet: blocks},
	}
}

// Mention renders a user id as a Slack mention.
func Mention(userID string) string {
	return "<@" + userID + ">"
}

func describeRestaurant(name, address string, duration, rating, price int, tags []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*", name)
	if address != "" {
		fmt.Fprintf(&b, "\n%s", address)
	}
	fmt.Fprintf(&b, "\n:stopwatch: %d min  :star: %s  :moneybag: %d", duration, strings.Repeat("★", rating), price)
	if len(tags) > 0 {
		fmt.Fprintf(&b, "\n:label: %s", strings.Join(tags, ", "))
	}
	return b.String()
}

// AddRestaurantConfirm asks the user to confirm a staged restaurant.
func AddRestaurantConfirm(p models.PendingRestaurant) slack.Msg {
	text := "Add this restaurant?"
	blocks := []slack.Block{
		section(text),
		section(describeRestaurant(p.Name, p.Address, p.DurationMinutes, p.Rating, p.Price, p.Tags)),
	}
	confirm := button(statemachine.TriggerConfirmAdd, "", p.ID, "Add").WithStyle(slack.StylePrimary)
	cancel := button(statemachine.TriggerCancelAdd, "", p.ID, "Cancel").WithStyle(slack.StyleDanger)
	blocks = append(blocks, slack.NewActionBlock("confirm-add-restaurant", confirm, cancel))
	return slack.Msg{
		ResponseType: slack.ResponseTypeEphemeral,
		Text:         text,
		Blocks:       slack.Blocks{BlockSet: blocks},
	}
}

// RestaurantAdded replaces the confirmation prompt once committed.
func RestaurantAdded(r models.Restaurant) slack.Msg {
	return Replace(fmt.Sprintf(":white_check_mark: Added *%s* to the catalog.", r.Name))
}

// RestaurantList renders the whole catalog with a remove button per entry.
func RestaurantList(restaurants []models.Restaurant) slack.Msg {
	text := fmt.Sprintf("%d restaurants", len(restaurants))
	if len(restaurants) == 1 {
		text = "1 restaurant"
	}
	blocks := []slack.Block{slack.NewHeaderBlock(plain(text))}
	shown, more := truncated(restaurants)
	for _, r := range shown {
		remove := slack.NewButtonBlockElement(string(statemachine.TriggerRemoveRestaurant),
			strconv.FormatUint(uint64(r.ID), 10), plain("Remove")).WithStyle(slack.StyleDanger)
		blocks = append(blocks,
			slack.NewDividerBlock(),
			slack.NewSectionBlock(
				mrkdwn(describeRestaurant(r.Name, r.Address, r.DurationMinutes, r.Rating, r.Price, r.Tags)),
				nil,
				slack.NewAccessory(remove)))
	}
	if more != nil {
		blocks = append(blocks, more)
	}
	return slack.Msg{
		ResponseType: slack.ResponseTypeEphemeral,
		Text:         text,
		Blocks:       slack.Blocks{BlockSet: blocks},
	}
}

// TimePrompt is the first question of a lunch session.
func TimePrompt(sessionID, initiatorID string) (string, []slack.Block) {
	text := fmt.Sprintf("%s is organising lunch. How much time do you have?", Mention(initiatorID))
	buttons := make([]*slack.ButtonBlockElement, 0, len(TimeOptions))
	for _, n := range TimeOptions {
		buttons = append(buttons, button(statemachine.TriggerAnswerTime, strconv.Itoa(n), sessionID, fmt.Sprintf("%d min", n)))
	}
	return text, append([]slack.Block{section(text)}, actionRows("time-limit", buttons)...)
}

// PricePrompt is the second question.
func PricePrompt(sessionID string, timeLimit int) (string, []slack.Block) {
	text := "What is the most you want to spend?"
	buttons := make([]*slack.ButtonBlockElement, 0, len(PriceOptions))
	for _, n := range PriceOptions {
		buttons = append(buttons, button(statemachine.TriggerAnswerPrice, strconv.Itoa(n), sessionID, strconv.Itoa(n)))
	}
	blocks := []slack.Block{
		slack.NewContextBlock("", mrkdwn(fmt.Sprintf("Time limit: %d min", timeLimit))),
		section(text),
	}
	return text, append(blocks, actionRows("price-limit", buttons)...)
}

// TagPrompt is the last question. It is re-rendered on every toggle, with
// excluded tags highlighted.
func TagPrompt(sessionID string, tags []string, filter models.Filter) (string, []slack.Block) {
	text := "Anything you want to avoid today? Click tags to exclude them, then press Done."
	var summary []string
	if filter.TimeLimit != nil {
		summary = append(summary, fmt.Sprintf("Time limit: %d min", *filter.TimeLimit))
	}
	if filter.PriceLimit != nil {
		summary = append(summary, fmt.Sprintf("Price limit: %d", *filter.PriceLimit))
	}
	blocks := []slack.Block{}
	if len(summary) > 0 {
		blocks = append(blocks, slack.NewContextBlock("", mrkdwn(strings.Join(summary, "  |  "))))
	}
	blocks = append(blocks, section(text))

	buttons := make([]*slack.ButtonBlockElement, 0, len(tags))
	for _, tag := range tags {
		label := tag
		b := button(statemachine.TriggerToggleTag, tag, sessionID, label)
		if filter.Excludes(tag) {
			b = button(statemachine.TriggerToggleTag, tag, sessionID, ":no_entry_sign: "+label).WithStyle(slack.StyleDanger)
		}
		buttons = append(buttons, b)
	}
	if len(buttons) == 0 {
		blocks = append(blocks, section("_The catalog has no tags yet._"))
	}
	blocks = append(blocks, actionRows("tag-exclude", buttons)...)
	done := button(statemachine.TriggerFinishTags, "", sessionID, "Done").WithStyle(slack.StylePrimary)
	blocks = append(blocks, slack.NewActionBlock("finish-tag-exclude", done))
	return text, blocks
}

// Waiting replaces the tag prompt once the user is done.
func Waiting(filter models.Filter, everyoneDone bool) slack.Msg {
	text := "Thanks! I'll send suggestions once everyone has answered."
	if everyoneDone {
		text = "Thanks! Everyone has answered, suggestions are on their way."
	}
	if len(filter.ExcludedTags) > 0 {
		text += "\nExcluding: " + strings.Join(filter.ExcludedTags, ", ")
	}
	return Replace(text)
}

func describeCriteria(crit models.Criteria) string {
	parts := []string{}
	if crit.TimeLimit != nil {
		parts = append(parts, fmt.Sprintf("at most %d min", *crit.TimeLimit))
	} else {
		parts = append(parts, "any duration")
	}
	if crit.PriceLimit != nil {
		parts = append(parts, fmt.Sprintf("price at most %d", *crit.PriceLimit))
	} else {
		parts = append(parts, "any price")
	}
	if len(crit.ExcludedTags) > 0 {
		parts = append(parts, "excluding "+strings.Join(crit.ExcludedTags, ", "))
	}
	return strings.Join(parts, ", ")
}

// SuggestionsSent is the channel notice once a session's DMs went out.
func SuggestionsSent(userIDs []string) string {
	mentions := make([]string, len(userIDs))
	for i, id := range userIDs {
		mentions[i] = Mention(id)
	}
	return ":fork_and_knife: Lunch suggestions sent to " + strings.Join(mentions, ", ") + "."
}

// Suggestions is the final direct message of a session.
func Suggestions(crit models.Criteria, matches []models.Restaurant) (string, []slack.Block) {
	if len(matches) == 0 {
		text := "No restaurant matches everyone's preferences today."
		return text, []slack.Block{
			section(":shrug: " + text),
			slack.NewContextBlock("", mrkdwn("Searched for "+describeCriteria(crit))),
		}
	}
	text := fmt.Sprintf("%d lunch suggestions", len(matches))
	if len(matches) == 1 {
		text = "1 lunch suggestion"
	}
	blocks := []slack.Block{
		slack.NewHeaderBlock(plain(text)),
		slack.NewContextBlock("", mrkdwn("Everyone's limits: "+describeCriteria(crit))),
	}
	shown, more := truncated(matches)
	for _, r := range shown {
		blocks = append(blocks, slack.NewDividerBlock(),
			section(describeRestaurant(r.Name, r.Address, r.DurationMinutes, r.Rating, r.Price, r.Tags)))
	}
	if more != nil {
		blocks = append(blocks, more)
	}
	return text, blocks
}
