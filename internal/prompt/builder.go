// Package prompt turns a validated generation request into the text
// prompt sent to the video provider.
package prompt

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"server/internal/catalog"
	"server/internal/domain"
)

// Builder produces deterministic prompts: identical inputs yield a
// byte-identical prompt string.
type Builder struct {
	catalog *catalog.Catalog
	title   cases.Caser
}

func NewBuilder(c *catalog.Catalog) *Builder {
	return &Builder{catalog: c, title: cases.Title(language.Und)}
}

// Input carries the prompt-relevant slice of a generation request.
type Input struct {
	Ingredients []string
	Cuisine     string
	DishType    string
	EnableAudio bool
}

// Build validates the ingredient list, resolves the dish type and
// assembles the cooking-scene narrative.
func (b *Builder) Build(in Input) (string, error) {
	ingredients := cleanIngredients(in.Ingredients)
	if len(ingredients) == 0 {
		return "", domain.E(domain.KindInvalidRequest, "ingredients list is empty")
	}
	dishType, ok := b.catalog.DishType(in.DishType)
	if !ok {
		return "", domain.E(domain.KindInvalidRequest, "unknown dish type %q", in.DishType)
	}

	cuisine := strings.ToLower(strings.TrimSpace(in.Cuisine))
	cuisineName := b.title.String(cuisine)
	generic := cuisine == "" || cuisine == "international" || !b.catalog.KnownCuisine(cuisine)

	var character, kitchen, style string
	if generic {
		character = "a traditional home cook with warm facial expressions and practiced cooking movements"
		kitchen = "a traditional home kitchen with well-worn cookware"
		style = "traditional home cooking techniques"
	} else {
		character = fmt.Sprintf("an authentic %s cook in traditional %s attire with warm facial expressions", cuisineName, cuisineName)
		kitchen = fmt.Sprintf("a traditional %s home kitchen with authentic cookware and cultural utensils", cuisineName)
		style = fmt.Sprintf("traditional %s cooking techniques", cuisineName)
	}

	actions := cookingActions(ingredients, in.DishType)
	if len(actions) > 3 {
		actions = actions[:3]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "A cooking scene in %s showing %s preparing %s using %s. ",
		kitchen, character, strings.ToLower(dishType.Name), strings.Join(ingredients, ", "))
	sb.WriteString("Wide angle view showing the complete kitchen and the cook from head to toe. ")
	fmt.Fprintf(&sb, "Cooking sequence: %s, finishing by %s. ", strings.Join(actions, ", "), dishType.Action)
	fmt.Fprintf(&sb, "The cook works with %s, warm lighting and steam rising from the pan.", style)
	if in.EnableAudio {
		if generic {
			sb.WriteString(" Audio: intense sizzling, rhythmic chopping, gentle home kitchen ambiance.")
		} else {
			fmt.Fprintf(&sb, " Audio: sizzling, rhythmic chopping, aromatic steam rising, a warm traditional %s score with cultural instruments.", cuisine)
		}
	}
	return sb.String(), nil
}

func cleanIngredients(in []string) []string {
	out := make([]string, 0, len(in))
	for _, ing := range in {
		if ing = strings.TrimSpace(ing); ing != "" {
			out = append(out, ing)
		}
	}
	return out
}

// cookingActions assigns each ingredient a brief cooking action based
// on its category, mirroring how a cook would actually handle it.
func cookingActions(ingredients []string, dishType string) []string {
	actions := make([]string, 0, len(ingredients)+1)
	if strings.Contains(strings.ToLower(dishType), "pasta") {
		actions = append(actions, "cooking pasta noodles until al dente")
	}
	for _, ingredient := range ingredients {
		lower := strings.ToLower(ingredient)
		switch {
		case containsAny(lower, "salmon", "tuna", "cod", "fish", "trout", "shrimp"):
			actions = append(actions, fmt.Sprintf("adding %s pieces to a hot pan", ingredient))
		case containsAny(lower, "sauce", "oil", "vinegar", "wine", "broth"):
			actions = append(actions, fmt.Sprintf("drizzling %s over the ingredients", ingredient))
		case containsAny(lower, "garlic", "ginger", "shallot"):
			actions = append(actions, fmt.Sprintf("adding minced %s to the sizzling pan", ingredient))
		case containsAny(lower, "scallion", "onion", "chive", "leek"):
			actions = append(actions, fmt.Sprintf("tossing in chopped %s", ingredient))
		case containsAny(lower, "tomato", "pepper", "carrot", "celery", "zucchini"):
			actions = append(actions, fmt.Sprintf("stirring in diced %s", ingredient))
		case containsAny(lower, "chicken", "beef", "pork", "lamb", "duck"):
			actions = append(actions, fmt.Sprintf("searing %s pieces in hot oil", ingredient))
		default:
			actions = append(actions, fmt.Sprintf("incorporating %s into the dish", ingredient))
		}
	}
	return actions
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
