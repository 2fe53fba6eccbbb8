package trust

import "testing"

const packageDiff = `diff --git a/src/Project/Project.csproj b/src/Project/Project.csproj
index 8abe306..d892f20 100644
--- a/src/Project/Project.csproj
+++ b/src/Project/Project.csproj
@@ -10,7 +10,7 @@
   <ItemGroup>
-    <PackageReference Include="Foo" Version="1.0.0" />
+    <PackageReference Include="Foo" Version="1.0.1" />
   </ItemGroup>
`

func TestTryParseUpdatedPackages(t *testing.T) {
	t.Parallel()

	updates, ok := TryParseUpdatedPackages(packageDiff)
	if !ok {
		t.Fatal("TryParseUpdatedPackages() found no updates")
	}
	update, found := updates["Foo"]
	if !found {
		t.Fatalf("no entry for Foo in %v", updates)
	}
	if update.From != "1.0.0" || update.To != "1.0.1" {
		t.Fatalf("Foo moved %s -> %s, want 1.0.0 -> 1.0.1", update.From, update.To)
	}
}

func TestTryParseUpdatedPackagesDowngradeExcluded(t *testing.T) {
	t.Parallel()

	diff := `diff --git a/Project.csproj b/Project.csproj
@@ -1,2 +1,2 @@
-    <PackageReference Include="Foo" Version="1.0.1" />
+    <PackageReference Include="Foo" Version="1.0.0" />
`
	if updates, ok := TryParseUpdatedPackages(diff); ok {
		t.Fatalf("TryParseUpdatedPackages() = %v, want no updates for a downgrade", updates)
	}
}

func TestTryParseUpdatedPackagesVersionOverride(t *testing.T) {
	t.Parallel()

	diff := `diff --git a/Directory.Packages.props b/Directory.Packages.props
@@ -1,2 +1,2 @@
-    <PackageVersion Update="Bar" VersionOverride="2.1.0" />
+    <PackageVersion Update="Bar" VersionOverride="2.2.0" />
`
	updates, ok := TryParseUpdatedPackages(diff)
	if !ok {
		t.Fatal("TryParseUpdatedPackages() found no updates")
	}
	if update := updates["Bar"]; update.From != "2.1.0" || update.To != "2.2.0" {
		t.Fatalf("Bar moved %s -> %s, want 2.1.0 -> 2.2.0", update.From, update.To)
	}
}

func TestTryParseUpdatedPackagesIgnoresContextLines(t *testing.T) {
	t.Parallel()

	diff := `diff --git a/Project.csproj b/Project.csproj
@@ -1,3 +1,3 @@
     <PackageReference Include="Unchanged" Version="5.0.0" />
-    <PackageReference Include="Foo" Version="1.0.0" />
+    <PackageReference Include="Foo" Version="1.0.1" />
`
	updates, _ := TryParseUpdatedPackages(diff)
	if _, found := updates["Unchanged"]; found {
		t.Fatalf("context line produced an update: %v", updates)
	}
}

func TestTryParseUpdatedPackagesNoHunks(t *testing.T) {
	t.Parallel()

	if updates, ok := TryParseUpdatedPackages("not a diff at all"); ok {
		t.Fatalf("TryParseUpdatedPackages() = %v, want none", updates)
	}
}
