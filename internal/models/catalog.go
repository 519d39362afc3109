package models

import "time"

// Catalog returns the default LFS build step sequence. Callers receive a
// fresh copy; the run-loop mutates only its own copy.
func Catalog() []BuildStep {
	steps := make([]BuildStep, len(catalog))
	copy(steps, catalog)
	return steps
}

var catalog = []BuildStep{
	// Initial Setup (root)
	{
		ID:            "check-host-requirements",
		Name:          "Check host requirements",
		Description:   "Verify host toolchain versions meet the LFS minimums",
		Phase:         PhaseInitialSetup,
		Context:       ContextRoot,
		Status:        StepStatusPending,
		Command:       "bash version-check.sh",
		EstimatedTime: 10 * time.Second,
	},
	{
		ID:            "create-partition",
		Name:          "Create LFS partition",
		Description:   "Partition the target disk for the new system",
		Phase:         PhaseInitialSetup,
		Context:       ContextRoot,
		Status:        StepStatusPending,
		RequiresInput: true,
		Command:       "fdisk $LFS_DISK",
		EstimatedTime: 30 * time.Second,
	},
	{
		ID:            "mount-lfs-partition",
		Name:          "Mount LFS partition",
		Phase:         PhaseInitialSetup,
		Context:       ContextRoot,
		Status:        StepStatusPending,
		Command:       "mkdir -pv $LFS\nmount -v -t ext4 $LFS_DISK $LFS",
		EstimatedTime: 5 * time.Second,
		Dependencies:  []string{"create-partition"},
	},
	{
		ID:            "download-sources",
		Name:          "Download source packages",
		Description:   "Fetch all package tarballs listed in wget-list",
		Phase:         PhaseInitialSetup,
		Context:       ContextRoot,
		Status:        StepStatusPending,
		Command:       "mkdir -v $LFS/sources\nwget --input-file=wget-list --continue --directory-prefix=$LFS/sources",
		EstimatedTime: 5 * time.Minute,
		Dependencies:  []string{"mount-lfs-partition"},
	},
	{
		ID:            "create-lfs-user",
		Name:          "Create lfs user",
		Description:   "Create the unprivileged build user and group",
		Phase:         PhaseInitialSetup,
		Context:       ContextRoot,
		Status:        StepStatusPending,
		Command:       "groupadd lfs\nuseradd -s /bin/bash -g lfs -m -k /dev/null lfs",
		EstimatedTime: 5 * time.Second,
	},
	{
		ID:            "set-lfs-user-password",
		Name:          "Set lfs user password",
		Phase:         PhaseInitialSetup,
		Context:       ContextRoot,
		Status:        StepStatusPending,
		RequiresInput: true,
		Command:       "passwd lfs",
		Dependencies:  []string{"create-lfs-user"},
	},

	// LFS-User Build (build-user)
	{
		ID:            "build-binutils-pass1",
		Name:          "Binutils pass 1",
		Description:   "Cross binutils for the temporary toolchain",
		Phase:         PhaseLFSUserBuild,
		Context:       ContextBuildUser,
		Status:        StepStatusPending,
		Command:       "tar -xf binutils-2.41.tar.xz\ncd binutils-2.41 && mkdir -v build && cd build\n../configure --prefix=$LFS/tools --with-sysroot=$LFS --target=$LFS_TGT\nmake && make install",
		EstimatedTime: 10 * time.Minute,
	},
	{
		ID:            "build-gcc-pass1",
		Name:          "GCC pass 1",
		Description:   "Cross compiler for the temporary toolchain",
		Phase:         PhaseLFSUserBuild,
		Context:       ContextBuildUser,
		Status:        StepStatusPending,
		Command:       "tar -xf gcc-13.2.0.tar.xz\ncd gcc-13.2.0 && mkdir -v build && cd build\n../configure --target=$LFS_TGT --prefix=$LFS/tools --with-glibc-version=2.38\nmake && make install",
		EstimatedTime: 30 * time.Minute,
		Dependencies:  []string{"build-binutils-pass1"},
	},
	{
		ID:            "install-linux-headers",
		Name:          "Linux API headers",
		Phase:         PhaseLFSUserBuild,
		Context:       ContextBuildUser,
		Status:        StepStatusPending,
		Command:       "tar -xf linux-6.4.12.tar.xz\ncd linux-6.4.12\nmake mrproper\nmake headers\ncp -rv usr/include $LFS/usr",
		EstimatedTime: 2 * time.Minute,
	},
	{
		ID:            "build-glibc",
		Name:          "Glibc",
		Description:   "C library against the new headers",
		Phase:         PhaseLFSUserBuild,
		Context:       ContextBuildUser,
		Status:        StepStatusPending,
		Command:       "tar -xf glibc-2.38.tar.xz\ncd glibc-2.38 && mkdir -v build && cd build\n../configure --prefix=/usr --host=$LFS_TGT --build=$(../scripts/config.guess)\nmake && make DESTDIR=$LFS install",
		EstimatedTime: 20 * time.Minute,
		Dependencies:  []string{"build-gcc-pass1", "install-linux-headers"},
	},
	{
		ID:            "build-temporary-tools",
		Name:          "Temporary tools",
		Description:   "Coreutils, bash, make and friends for the chroot",
		Phase:         PhaseLFSUserBuild,
		Context:       ContextBuildUser,
		Status:        StepStatusPending,
		Command:       "bash build-temporary-tools.sh",
		EstimatedTime: 45 * time.Minute,
		Dependencies:  []string{"build-glibc"},
	},

	// Chroot Setup (chroot)
	{
		ID:            "change-ownership",
		Name:          "Change ownership to root",
		Phase:         PhaseChrootSetup,
		Context:       ContextChroot,
		Status:        StepStatusPending,
		Command:       "chown -R root:root $LFS/{usr,lib,var,etc,bin,sbin,tools}",
		EstimatedTime: 30 * time.Second,
	},
	{
		ID:            "mount-virtual-fs",
		Name:          "Mount virtual kernel filesystems",
		Phase:         PhaseChrootSetup,
		Context:       ContextChroot,
		Status:        StepStatusPending,
		Command:       "mount -v --bind /dev $LFS/dev\nmount -v --bind /dev/pts $LFS/dev/pts\nmount -vt proc proc $LFS/proc\nmount -vt sysfs sysfs $LFS/sys\nmount -vt tmpfs tmpfs $LFS/run",
		EstimatedTime: 5 * time.Second,
	},
	{
		ID:            "enter-chroot",
		Name:          "Enter chroot environment",
		Phase:         PhaseChrootSetup,
		Context:       ContextChroot,
		Status:        StepStatusPending,
		Command:       "chroot \"$LFS\" /usr/bin/env -i HOME=/root TERM=$TERM PATH=/usr/bin:/usr/sbin /bin/bash --login",
		EstimatedTime: 5 * time.Second,
		Dependencies:  []string{"mount-virtual-fs"},
	},
	{
		ID:            "create-directory-tree",
		Name:          "Create full directory tree",
		Phase:         PhaseChrootSetup,
		Context:       ContextChroot,
		Status:        StepStatusPending,
		Command:       "mkdir -pv /{boot,home,mnt,opt,srv}\nmkdir -pv /etc/{opt,sysconfig}\nmkdir -pv /usr/local/{bin,lib,sbin}",
		EstimatedTime: 10 * time.Second,
	},
	{
		ID:            "create-essential-files",
		Name:          "Create essential files and symlinks",
		Phase:         PhaseChrootSetup,
		Context:       ContextChroot,
		Status:        StepStatusPending,
		Command:       "ln -sv /proc/self/mounts /etc/mtab\ncat > /etc/passwd << EOF\nroot:x:0:0:root:/root:/bin/bash\nEOF",
		EstimatedTime: 10 * time.Second,
	},

	// Chroot Build (chroot)
	{
		ID:            "build-basic-packages",
		Name:          "Build basic system packages",
		Description:   "Man-pages, iana-etc, glibc final, zlib, bzip2, xz",
		Phase:         PhaseChrootBuild,
		Context:       ContextChroot,
		Status:        StepStatusPending,
		Command:       "bash build-basic-packages.sh",
		EstimatedTime: 60 * time.Minute,
	},
	{
		ID:            "build-toolchain-final",
		Name:          "Build final toolchain",
		Description:   "Binutils, GCC and friends installed for good",
		Phase:         PhaseChrootBuild,
		Context:       ContextChroot,
		Status:        StepStatusPending,
		Command:       "bash build-toolchain-final.sh",
		EstimatedTime: 90 * time.Minute,
		Dependencies:  []string{"build-basic-packages"},
	},
	{
		ID:            "build-system-software",
		Name:          "Build remaining system software",
		Phase:         PhaseChrootBuild,
		Context:       ContextChroot,
		Status:        StepStatusPending,
		Command:       "bash build-system-software.sh",
		EstimatedTime: 60 * time.Minute,
		Dependencies:  []string{"build-toolchain-final"},
	},
	{
		ID:            "strip-debug-symbols",
		Name:          "Strip debugging symbols",
		Phase:         PhaseChrootBuild,
		Context:       ContextChroot,
		Status:        StepStatusPending,
		Command:       "save_usrlib=\"$(cd /usr/lib; ls ld-linux*)\"\nfind /usr/lib -type f -name '*.a' -exec strip --strip-debug {} ';'",
		EstimatedTime: 2 * time.Minute,
	},

	// System Configuration (chroot)
	{
		ID:            "configure-network",
		Name:          "Configure network",
		Description:   "Hostname and basic interface configuration",
		Phase:         PhaseSystemConfig,
		Context:       ContextChroot,
		Status:        StepStatusPending,
		RequiresInput: true,
		Command:       "echo \"$HOSTNAME\" > /etc/hostname",
		EstimatedTime: 30 * time.Second,
	},
	{
		ID:            "create-fstab",
		Name:          "Create /etc/fstab",
		Phase:         PhaseSystemConfig,
		Context:       ContextChroot,
		Status:        StepStatusPending,
		Command:       "cat > /etc/fstab << EOF\n$LFS_DISK / ext4 defaults 1 1\nEOF",
		EstimatedTime: 10 * time.Second,
	},
	{
		ID:            "build-kernel",
		Name:          "Build Linux kernel",
		Phase:         PhaseSystemConfig,
		Context:       ContextChroot,
		Status:        StepStatusPending,
		Command:       "cd linux-6.4.12\nmake defconfig\nmake\nmake modules_install\ncp -iv arch/x86/boot/bzImage /boot/vmlinuz-6.4.12-lfs",
		EstimatedTime: 45 * time.Minute,
	},
	{
		ID:            "set-root-password",
		Name:          "Set root password",
		Phase:         PhaseSystemConfig,
		Context:       ContextChroot,
		Status:        StepStatusPending,
		RequiresInput: true,
		Command:       "passwd root",
	},

	// Final Steps (chroot)
	{
		ID:            "install-grub",
		Name:          "Install GRUB bootloader",
		Phase:         PhaseFinalSteps,
		Context:       ContextChroot,
		Status:        StepStatusPending,
		Command:       "grub-install $LFS_DISK\ncat > /boot/grub/grub.cfg << EOF\nset default=0\nset timeout=5\nEOF",
		EstimatedTime: 2 * time.Minute,
		Dependencies:  []string{"build-kernel"},
	},
	{
		ID:            "create-release-files",
		Name:          "Create release files",
		Phase:         PhaseFinalSteps,
		Context:       ContextChroot,
		Status:        StepStatusPending,
		Command:       "echo 12.0 > /etc/lfs-release\ncat > /etc/os-release << EOF\nNAME=\"Linux From Scratch\"\nVERSION=\"12.0\"\nEOF",
		EstimatedTime: 10 * time.Second,
	},
	{
		ID:            "cleanup-and-unmount",
		Name:          "Clean up and unmount",
		Phase:         PhaseFinalSteps,
		Context:       ContextChroot,
		Status:        StepStatusPending,
		Command:       "rm -rf /tmp/*\numount -v $LFS/dev/pts\numount -v $LFS/{sys,proc,run,dev}",
		EstimatedTime: 30 * time.Second,
	},
}
