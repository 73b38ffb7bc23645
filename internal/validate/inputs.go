package validate

import "strings"

// SignupInput is the accepted signup payload.
type SignupInput struct {
	Email    string `form:"email" validate:"required,email,max=255"`
	Password string `form:"password" validate:"required,min=8,max=128,letterdigit"`
}

// LoginInput only bounds the password; its format is not checked on login.
type LoginInput struct {
	Email    string `form:"email" validate:"required,email,max=255"`
	Password string `form:"password" validate:"required,max=128"`
}

// DishCreateInput is the accepted create payload, minus the image.
type DishCreateInput struct {
	Name      string `form:"name" validate:"required,min=1,max=100"`
	PlateSize string `form:"plate_size" validate:"omitempty,platesize"`
}

// DishUpdateInput carries only the fields the caller sent.
type DishUpdateInput struct {
	Name      *string `form:"name" validate:"omitnil,min=1,max=100"`
	PlateSize *string `form:"plate_size" validate:"omitnil,platesize"`
}

var (
	credentialFields = []string{"email", "password"}
	dishFields       = []string{"name", "plate_size", "plateSize"}
)

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Signup projects and validates a signup form.
func Signup(values map[string][]string) (*SignupInput, error) {
	p := Project(values, credentialFields...)
	in := &SignupInput{Email: NormalizeEmail(p["email"]), Password: p["password"]}
	if err := Struct(in); err != nil {
		return nil, err
	}
	return in, nil
}

// Login projects and validates a login form.
func Login(values map[string][]string) (*LoginInput, error) {
	p := Project(values, credentialFields...)
	in := &LoginInput{Email: NormalizeEmail(p["email"]), Password: p["password"]}
	if err := Struct(in); err != nil {
		return nil, err
	}
	return in, nil
}

// plateSizeField accepts the camelCase spelling older clients send.
func plateSizeField(p map[string]string) (string, bool) {
	if v, ok := p["plate_size"]; ok {
		return strings.TrimSpace(v), true
	}
	if v, ok := p["plateSize"]; ok {
		return strings.TrimSpace(v), true
	}
	return "", false
}

// DishCreate validates a create form. The name comes back trimmed and escaped
// and plate_size defaults to medium.
func DishCreate(values map[string][]string) (*DishCreateInput, error) {
	p := Project(values, dishFields...)
	in := &DishCreateInput{Name: strings.TrimSpace(p["name"])}
	in.PlateSize, _ = plateSizeField(p)
	if err := Struct(in); err != nil {
		return nil, err
	}
	in.Name = Escape(in.Name)
	if in.PlateSize == "" {
		in.PlateSize = DefaultPlateSize
	}
	return in, nil
}

// DishUpdate validates an update form. Absent fields stay nil; an empty
// plate_size counts as absent.
func DishUpdate(values map[string][]string) (*DishUpdateInput, error) {
	p := Project(values, dishFields...)
	in := &DishUpdateInput{}
	if v, ok := p["name"]; ok {
		name := strings.TrimSpace(v)
		in.Name = &name
	}
	if v, ok := plateSizeField(p); ok && v != "" {
		in.PlateSize = &v
	}
	if err := Struct(in); err != nil {
		return nil, err
	}
	if in.Name != nil {
		escaped := Escape(*in.Name)
		in.Name = &escaped
	}
	return in, nil
}

